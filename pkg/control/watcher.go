package control

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"piigate/pkg/config"
	"piigate/pkg/engine"
)

// Watcher hot-reloads the detector/policy configuration. It fetches the
// config document from a Redis key at startup and re-fetches on every
// pub/sub signal, validating and compiling each document before swapping
// it into the pipeline. An invalid document is discarded; the running
// snapshot stays up.
type Watcher struct {
	client   *redis.Client
	pipeline *engine.Pipeline
	channel  string
	key      string
	log      *zap.Logger
}

func NewWatcher(cfg config.RedisConfig, pipeline *engine.Pipeline, log *zap.Logger) *Watcher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Watcher{
		client:   rdb,
		pipeline: pipeline,
		channel:  cfg.Channel,
		key:      cfg.Key,
		log:      log,
	}
}

// Start performs an initial reload and then blocks on the subscription
// until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.log.Info("control: starting config watcher",
		zap.String("channel", w.channel), zap.String("key", w.key))

	w.reload(ctx)

	pubsub := w.client.Subscribe(ctx, w.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.log.Info("control: received update signal", zap.String("payload", msg.Payload))
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	val, err := w.client.Get(ctx, w.key).Result()
	if err == redis.Nil {
		w.log.Info("control: no config in redis, keeping current snapshot")
		return
	} else if err != nil {
		w.log.Warn("control: failed to fetch config", zap.Error(err))
		return
	}

	cfg, err := config.Parse([]byte(val))
	if err != nil {
		w.log.Error("control: invalid config document", zap.Error(err))
		return
	}
	snap, err := engine.NewSnapshot(cfg)
	if err != nil {
		w.log.Error("control: config rejected", zap.Error(err))
		return
	}

	w.pipeline.UpdateSnapshot(snap)
}
