package websocket

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsSubjectPrefix = "campusline.user."

type NATSBroker struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func ConnectNATS(url string, logger *zap.Logger) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name("campusline"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSBroker{nc: nc, logger: logger}, nil
}

func (b *NATSBroker) Publish(_ context.Context, userID string, payload []byte) error {
	return b.nc.Publish(natsSubjectPrefix+userID, payload)
}

func (b *NATSBroker) Subscribe(ctx context.Context, deliver func(userID string, payload []byte)) error {
	sub, err := b.nc.Subscribe(natsSubjectPrefix+"*", func(msg *nats.Msg) {
		deliver(strings.TrimPrefix(msg.Subject, natsSubjectPrefix), msg.Data)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			b.logger.Warn("nats unsubscribe failed", zap.Error(err))
		}
	}()

	b.logger.Info("nats relay subscribed", zap.String("subject", natsSubjectPrefix+"*"))
	return nil
}

func (b *NATSBroker) Close() error {
	return b.nc.Drain()
}
