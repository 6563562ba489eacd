package startup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/config"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/repository"
	"github.com/planner/internal/storage"
	"github.com/planner/internal/storage/devstore"
	"github.com/planner/internal/storage/memory"
	"github.com/planner/migrations"
)

// OTPLedger — OTP-записи и журнал напоминаний; у Redis, devstore и memory.Client одна пара методов.
type OTPLedger interface {
	storage.OTPStore
	storage.ReminderLedger
}

// Backend — хранилища процесса. Close освобождает их в обратном порядке.
type Backend struct {
	Store  storage.Store
	Keys   OTPLedger
	Pool   *pgxpool.Pool
	closer []func()
}

func (b *Backend) Close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		b.closer[i]()
	}
}

// OpenMemory — всё в памяти процесса (-memory, тесты). Данные не переживают перезапуск.
func OpenMemory() *Backend {
	logger.Warnf("storage: in-memory mode, data is lost on restart")
	keys := memory.New()
	return &Backend{Store: memory.NewStore(), Keys: keys, closer: []func(){func() { _ = keys.Close() }}}
}

// OpenPostgres подключается к БД (с повторами), применяет миграции и выбирает хранилище ключей:
// Redis при заданном REDIS_URL, иначе devstore (OTP в памяти, отметки напоминаний в БД).
func OpenPostgres(cfg *config.Config, logPrefix string) (*Backend, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := ConnectDBWithRetry(poolCfg, 60*time.Second, logPrefix)
	store := repository.NewStore(pool)
	b := &Backend{Pool: pool, Store: store}
	b.closer = append(b.closer, pool.Close, store.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := RunMigrations(ctx, pool, migrations.Files); err != nil {
		b.Close()
		return nil, err
	}

	if cfg.Redis.URL != "" {
		rc := ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, logPrefix)
		b.Keys = rc
		b.closer = append(b.closer, func() { _ = rc.Close() })
	} else {
		logger.Warnf("%sREDIS_URL not set: OTP codes kept in memory", logPrefix)
		dc := devstore.New(repository.NewReminderRepository(pool))
		b.Keys = dc
		b.closer = append(b.closer, func() { _ = dc.Close() })
	}
	logger.Infof("%sdatabase connected, migrations applied", logPrefix)
	return b, nil
}
