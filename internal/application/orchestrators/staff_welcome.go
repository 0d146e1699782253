package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/email"
	"eduadmin/internal/domain/outbox"
)

// OutboxWriter queues a side effect for a later retry.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// StaffWelcomeInput describes a freshly registered staff member.
type StaffWelcomeInput struct {
	Email     string
	FirstName string
}

// StaffWelcomeDeps holds dependencies for the welcome notice.
type StaffWelcomeDeps struct {
	Sender      email.Sender
	From        string
	Outbox      OutboxWriter  // optional
	SendTimeout time.Duration // bounds the inline attempt; zero means none
	Now         func() time.Time
}

// ExecuteStaffWelcome emails a new staff member that their console access exists.
// A failed delivery is queued in the outbox when one is configured; otherwise it is
// returned. The staff account is unaffected either way. The work is detached from
// ctx cancellation, so a client that goes away does not lose the message.
// PRE: input.Email is non-empty
// POST: one message handed to the sender, or queued for retry
func ExecuteStaffWelcome(ctx context.Context, input StaffWelcomeInput, deps StaffWelcomeDeps) error {
	if input.Email == "" || deps.Sender == nil {
		return nil
	}
	body := fmt.Sprintf("<p>Здравствуйте, %s!</p><p>Для вас создана учётная запись менеджера. "+
		"Войдите в консоль, используя этот адрес электронной почты.</p>", html.EscapeString(input.FirstName))
	req := email.SendRequest{
		To:      []string{input.Email},
		From:    deps.From,
		Subject: "Доступ к консоли управления",
		HTML:    body,
	}
	ctx = context.WithoutCancel(ctx)
	sendCtx, cancel := ctx, context.CancelFunc(func() {})
	if deps.SendTimeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, deps.SendTimeout)
	}
	_, err := deps.Sender.Send(sendCtx, req)
	cancel()
	if err == nil {
		return nil
	}
	zap.S().Warnw("staff_welcome_failed", "email", input.Email, "error", err)
	if deps.Outbox == nil {
		return fmt.Errorf("send staff welcome: %w", err)
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	payload, merr := json.Marshal(req)
	if merr != nil {
		return fmt.Errorf("encode staff welcome: %w", merr)
	}
	entry, verr := outbox.New(outbox.KindEmail, string(payload), err, now())
	if verr != nil {
		return verr
	}
	if serr := deps.Outbox.Save(ctx, entry); serr != nil {
		return fmt.Errorf("queue staff welcome: %w", serr)
	}
	zap.S().Infow("outbox_event", "event", "queued", "entry_id", entry.ID, "kind", entry.Kind)
	return nil
}
