package document

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

// Command names of the journal service
const (
	CommandPostJournal    = "journal.post"
	CommandReverseJournal = "journal.reverse"
)

// PostJournalCommand posts a free-form journal entry
type PostJournalCommand struct {
	Date        time.Time
	Description string
	Lines       []ledger.LineInput
}

// ReverseJournalCommand reverses a posted entry
type ReverseJournalCommand struct {
	EntryID uuid.UUID
	// Date of the reversal; zero keeps the original date
	Date   time.Time
	Reason string
}

// JournalResponse is the stored and replayed result of journal commands
type JournalResponse struct {
	EntryID         uuid.UUID   `json:"entryId"`
	Date            string      `json:"date"`
	TotalDebit      string      `json:"totalDebit"`
	ReversesEntryID *uuid.UUID  `json:"reversesEntryId,omitempty"`
	EventIDs        []uuid.UUID `json:"eventIds"`
	Replayed        bool        `json:"-"`
}

// JournalService posts and reverses manual journal entries
type JournalService struct {
	runner
}

// NewJournalService creates a new JournalService
func NewJournalService(deps Deps) *JournalService {
	return &JournalService{runner: newRunner(deps)}
}

// Post posts a manual entry. Manual entries carry no account roles.
func (s *JournalService) Post(ctx context.Context, cc shared.CommandContext, cmd PostJournalCommand) (*JournalResponse, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if err := ledger.ValidateLines(cmd.Lines); err != nil {
		return nil, err
	}

	lines := make([]appledger.PostLine, len(cmd.Lines))
	for i, l := range cmd.Lines {
		lines[i] = appledger.PostLine{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo}
	}
	result, err := s.run(ctx, cc, CommandPostJournal, nil, func(ctx context.Context, tx command.Tx) (any, error) {
		entry, err := s.Posting.Post(ctx, tx, appledger.PostRequest{
			TenantID:      cc.TenantID,
			Date:          cmd.Date,
			Description:   cmd.Description,
			Lines:         lines,
			SkipRoleCheck: true,
			SourceType:    "manual",
			CreatedBy:     cc.ActorID,
			CorrelationID: cc.Correlation(),
		})
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, cc, audit.ActionJournalPosted, entry); err != nil {
			return nil, err
		}
		return journalResponse(entry), nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Replayed {
		s.Metrics.RecordPosting(ctx, cc.TenantID, "manual")
	}
	return decodeJournal(result)
}

// Reverse reverses a posted entry; a second reversal returns the first one
func (s *JournalService) Reverse(ctx context.Context, cc shared.CommandContext, cmd ReverseJournalCommand) (*JournalResponse, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cmd.EntryID == uuid.Nil {
		return nil, shared.NewValidationError("ENTRY_REQUIRED", "journal entry id is required")
	}

	lockKey := command.DocumentLockKey(cc.TenantID, "journal", cmd.EntryID)
	result, err := s.run(ctx, cc, CommandReverseJournal, []string{lockKey}, func(ctx context.Context, tx command.Tx) (any, error) {
		reversal, created, err := s.Posting.Reverse(ctx, tx, appledger.ReverseRequest{
			TenantID:      cc.TenantID,
			EntryID:       cmd.EntryID,
			Date:          cmd.Date,
			Reason:        cmd.Reason,
			Actor:         cc.ActorID,
			CorrelationID: cc.Correlation(),
		})
		if err != nil {
			return nil, err
		}
		if created {
			if err := s.audit(ctx, tx, cc, audit.ActionJournalReversed, reversal); err != nil {
				return nil, err
			}
		}
		return journalResponse(reversal), nil
	})
	if err != nil {
		return nil, err
	}
	return decodeJournal(result)
}

func (s *JournalService) audit(ctx context.Context, tx command.Tx, cc shared.CommandContext, action string, e *ledger.JournalEntry) error {
	return tx.Audit().Append(ctx, audit.NewLog(audit.Entry{
		TenantID:       cc.TenantID,
		ActorID:        cc.ActorID,
		Action:         action,
		EntityType:     "journal_entry",
		EntityID:       e.ID,
		IdempotencyKey: cc.ClientKey,
		CorrelationID:  cc.Correlation(),
		Metadata: map[string]any{
			"amount":      e.TotalDebit().StringFixed(2),
			"description": e.Description,
		},
	}))
}

func journalResponse(e *ledger.JournalEntry) *JournalResponse {
	return &JournalResponse{
		EntryID:         e.ID,
		Date:            e.Date.Format(time.DateOnly),
		TotalDebit:      e.TotalDebit().StringFixed(2),
		ReversesEntryID: e.ReversesEntryID,
	}
}

func decodeJournal(result *command.Result) (*JournalResponse, error) {
	var resp JournalResponse
	if err := result.Decode(&resp); err != nil {
		return nil, err
	}
	resp.EventIDs = result.EventIDs
	resp.Replayed = result.Replayed
	return &resp, nil
}
