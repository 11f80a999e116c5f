// Package dispatch maps a validated intent onto exactly one banking
// operation. All parameter and allow-list checks happen here, before any
// network call; the dispatcher never retries, since the sandbox offers no
// idempotency keys and a retried transfer is a double spend.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/voicebank-gateway/internal/backend/obp"
	"github.com/tjfontaine/voicebank-gateway/internal/config"
	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// BankAPI is the slice of the sandbox client the dispatcher consumes.
type BankAPI interface {
	CreateUser(ctx context.Context, token string, profile obp.Profile) (string, error)
	CreateAccount(ctx context.Context, token, userID, bank string) (string, error)
	CreateTransfer(ctx context.Context, token string, tr obp.TransferRequest) (string, error)
}

// Dispatcher executes validated intents against the banking collaborator.
// Its bank set and allow-list are immutable after construction.
type Dispatcher struct {
	bank         BankAPI
	logger       *slog.Logger
	supported    map[string]bool
	allowedDests map[string]config.RecipientConfig // keyed by account id
	ceiling      float64
	timeout      time.Duration

	// sessionToken is the directlogin token obtained at startup. An
	// intent that carries its own token (echoed from history per the
	// context-preservation rule) takes precedence.
	sessionToken string
}

// New builds a dispatcher from configuration.
func New(bank BankAPI, cfg *config.Config, sessionToken string, logger *slog.Logger) *Dispatcher {
	timeout, err := time.ParseDuration(cfg.Bank.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 15 * time.Second
	}
	supported := make(map[string]bool, len(cfg.Banks))
	for _, b := range cfg.Banks {
		supported[b] = true
	}
	allowed := make(map[string]config.RecipientConfig, len(cfg.Recipients))
	for _, r := range cfg.Recipients {
		allowed[r.AccountID] = r
	}
	return &Dispatcher{
		bank:         bank,
		logger:       logger,
		supported:    supported,
		allowedDests: allowed,
		ceiling:      cfg.Bank.TransferCeiling,
		timeout:      timeout,
		sessionToken: sessionToken,
	}
}

// Dispatch executes the intent's action. It is called only for intents
// that passed completeness validation, and only once per turn. Every
// outcome, including rejections and uncertain timeouts, comes back as an
// ActionResult; Dispatch itself never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, in *domain.Intent) *domain.ActionResult {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch in.Action {
	case domain.ActionCreate:
		return d.create(ctx, in)
	case domain.ActionTransfer:
		return d.transfer(ctx, in)
	default:
		// greeting/other never reach dispatch; guard anyway.
		return &domain.ActionResult{Action: in.Action, Kind: domain.ResultFailed,
			Message: "action has no backend operation"}
	}
}

// create runs the non-atomic two-step sequence: user creation, then
// account creation. A failure after the first step is reported as partial
// progress, never silently collapsed into "failed". The orphaned user is
// left in place; the sandbox offers no safe compensation path.
func (d *Dispatcher) create(ctx context.Context, in *domain.Intent) *domain.ActionResult {
	result := &domain.ActionResult{Action: domain.ActionCreate}

	bank, ok := d.supportedBank(stringParam(in.Parameters, "bank"))
	if !ok {
		result.Kind = domain.ResultFailed
		result.Message = "unsupported bank"
		return result
	}

	profile := obp.Profile{
		Email:     stringParam(in.Parameters, "email"),
		Username:  stringParam(in.Parameters, "email"),
		Password:  stringParam(in.Parameters, "password"),
		FirstName: stringParam(in.Parameters, "first_name"),
		LastName:  stringParam(in.Parameters, "last_name"),
	}

	token := d.token(in)
	userID, err := d.bank.CreateUser(ctx, token, profile)
	if err != nil {
		d.logger.Warn("user creation failed", slog.String("error", err.Error()))
		result.Kind = failureKind(err)
		result.Message = "could not create the user"
		return result
	}
	result.UserID = userID

	accountID, err := d.bank.CreateAccount(ctx, token, userID, domain.WireBankID(bank))
	if err != nil {
		d.logger.Warn("account creation failed after user creation",
			slog.String("user_id", userID), slog.String("error", err.Error()))
		result.Kind = domain.ResultPartial
		result.Message = "the user was created but opening the account failed"
		return result
	}

	result.Kind = domain.ResultCreated
	result.AccountID = accountID
	return result
}

// transfer validates banks, destination, and amount locally, then submits
// one transaction request. Validation failures never touch the network.
func (d *Dispatcher) transfer(ctx context.Context, in *domain.Intent) *domain.ActionResult {
	result := &domain.ActionResult{Action: domain.ActionTransfer}

	fromBank, ok := d.supportedBank(stringParam(in.Parameters, "from_bank"))
	if !ok {
		result.Kind = domain.ResultFailed
		result.Message = "unsupported source bank"
		return result
	}
	toBank, ok := d.supportedBank(stringParam(in.Parameters, "to_bank"))
	if !ok {
		result.Kind = domain.ResultFailed
		result.Message = "unsupported destination bank"
		return result
	}

	toAccount := stringParam(in.Parameters, "to_account_id")
	recipient, allowed := d.allowedDests[toAccount]
	if !allowed || recipient.Bank != toBank {
		result.Kind = domain.ResultFailed
		result.Message = "destination account is not on the list of known recipients"
		return result
	}

	amount, err := amountParam(in.Parameters, "amount")
	if err != nil || amount <= 0 || amount >= d.ceiling {
		result.Kind = domain.ResultFailed
		result.Message = fmt.Sprintf("amount must be a positive number below %v", d.ceiling)
		return result
	}

	status, err := d.bank.CreateTransfer(ctx, d.token(in), obp.TransferRequest{
		FromBank:    domain.WireBankID(fromBank),
		FromAccount: stringParam(in.Parameters, "from_account_id"),
		ToBank:      domain.WireBankID(toBank),
		ToAccount:   toAccount,
		Amount:      amount,
	})
	if err != nil {
		d.logger.Warn("transfer failed", slog.String("error", err.Error()))
		result.Kind = failureKind(err)
		if result.Kind == domain.ResultUncertain {
			result.Message = "the transfer request timed out and may or may not have gone through; the balance should be verified"
		} else {
			result.Message = "the transfer was rejected"
		}
		return result
	}

	result.Status = status
	if status == obp.TransferStatusCompleted {
		result.Kind = domain.ResultTransferred
	} else {
		result.Kind = domain.ResultFailed
		result.Message = fmt.Sprintf("transfer ended in status %q", status)
	}
	return result
}

func (d *Dispatcher) supportedBank(raw string) (string, bool) {
	bank, ok := domain.NormalizeBank(raw)
	if !ok || !d.supported[bank] {
		return "", false
	}
	return bank, true
}

func (d *Dispatcher) token(in *domain.Intent) string {
	if t := stringParam(in.Parameters, "token"); t != "" {
		return t
	}
	return d.sessionToken
}

// failureKind distinguishes a timed-out call, whose side-effect state is
// unknown, from an ordinary rejection.
func failureKind(err error) domain.ResultKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ResultUncertain
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ResultUncertain
	}
	return domain.ResultFailed
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// amountParam accepts a JSON number or a numeric string; models emit both.
func amountParam(params map[string]any, key string) (float64, error) {
	if params == nil {
		return 0, fmt.Errorf("no parameters")
	}
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("amount has unsupported type %T", v)
	}
}
