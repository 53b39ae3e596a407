package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

// NotificationSender entrega la notificación por el canal elegido.
type NotificationSender interface {
	Send(ctx context.Context, channel, recipient, template string, vars map[string]string) error
	// IsUnsubscribed consulta la lista de bajas; enviar a un dado de baja
	// es un error de negocio definitivo, no un fallo transitorio.
	IsUnsubscribed(ctx context.Context, recipient string) (bool, error)
}

var validChannels = map[string]bool{
	"email": true,
	"sms":   true,
	"push":  true,
}

// NotificationProcessor envía las notificaciones de los flujos de pedido.
type NotificationProcessor struct {
	sender NotificationSender
	log    *zap.Logger
}

func NewNotificationProcessor(sender NotificationSender, log *zap.Logger) *NotificationProcessor {
	return &NotificationProcessor{sender: sender, log: log}
}

func (p *NotificationProcessor) Queue() string { return "notifications" }

func (p *NotificationProcessor) Process(ctx context.Context, task *jobs.Task, progress jobs.ProgressFunc) (map[string]interface{}, error) {
	var data jobs.NotificationJobData
	if err := json.Unmarshal(task.Payload, &data); err != nil {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid notification job payload: %w", err))
	}
	if !validChannels[data.Channel] {
		return nil, jobs.NonRetryable(fmt.Errorf("unknown notification channel %q", data.Channel))
	}
	if data.Template == "" {
		return nil, jobs.NonRetryable(fmt.Errorf("notification without template"))
	}
	if data.Recipient == "" {
		return nil, jobs.NonRetryable(fmt.Errorf("notification without recipient"))
	}

	progress(20, "Checking recipient")

	unsubscribed, err := p.sender.IsUnsubscribed(ctx, data.Recipient)
	if err != nil {
		return nil, fmt.Errorf("check unsubscribe list: %w", err)
	}
	if unsubscribed {
		return nil, jobs.NonRetryable(fmt.Errorf("recipient %s is unsubscribed", data.Recipient))
	}

	progress(60, "Sending notification")

	if err := p.sender.Send(ctx, data.Channel, data.Recipient, data.Template, data.Variables); err != nil {
		return nil, fmt.Errorf("send %s notification: %w", data.Channel, err)
	}

	p.log.Info("📨 Notificación enviada",
		zap.String("channel", data.Channel),
		zap.String("template", data.Template),
	)

	return map[string]interface{}{
		"channel":  data.Channel,
		"template": data.Template,
	}, nil
}
