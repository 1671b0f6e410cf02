package DataStore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nhirsama/Goster-Bridge/src/inter"
)

// DataStorePg 基于 PostgreSQL 的 inter.DataStore 实现，表结构与 SQLite 版本一致
type DataStorePg struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS devices (
   id            TEXT PRIMARY KEY,
   address       TEXT NOT NULL,
   family        TEXT NOT NULL,
   name          TEXT NOT NULL DEFAULT '',
   firmware      TEXT NOT NULL DEFAULT '',
   hardware      TEXT NOT NULL DEFAULT '',
   battery_level INTEGER NOT NULL DEFAULT -1,
   created_at    TIMESTAMPTZ,
   last_seen     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS samples (
   device_id TEXT NOT NULL,
   kind      INTEGER NOT NULL,
   ts        BIGINT NOT NULL,
   value     INTEGER NOT NULL,
   duration  INTEGER NOT NULL DEFAULT 0,
   details   JSONB,
   PRIMARY KEY (device_id, kind, ts)
);

CREATE TABLE IF NOT EXISTS logs (
   id         BIGSERIAL PRIMARY KEY,
   device_id  TEXT,
   level      TEXT,
   message    TEXT,
   created_at TIMESTAMPTZ DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_logs_device ON logs (device_id);
`

func NewDataStorePg(ctx context.Context, dsn string) (inter.DataStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &DataStorePg{pool: pool, timeout: 5 * time.Second}, nil
}

func (s *DataStorePg) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// [设备记录]

func (s *DataStorePg) SaveDevice(rec inter.DeviceRecord) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (id, address, family, name, firmware, hardware, battery_level, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			address=EXCLUDED.address, family=EXCLUDED.family, name=EXCLUDED.name,
			firmware=EXCLUDED.firmware, hardware=EXCLUDED.hardware,
			battery_level=EXCLUDED.battery_level, last_seen=EXCLUDED.last_seen`,
		rec.ID, rec.Address, rec.Family, rec.Name, rec.Firmware, rec.Hardware,
		rec.BatteryLevel, rec.CreatedAt, rec.LastSeen,
	)
	return err
}

func (s *DataStorePg) LoadDevice(id string) (out inter.DeviceRecord, err error) {
	ctx, cancel := s.ctx()
	defer cancel()
	err = s.pool.QueryRow(ctx, `
		SELECT id, address, family, name, firmware, hardware, battery_level, created_at, last_seen
		FROM devices WHERE id = $1`, id).Scan(
		&out.ID, &out.Address, &out.Family, &out.Name, &out.Firmware, &out.Hardware,
		&out.BatteryLevel, &out.CreatedAt, &out.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, inter.ErrDeviceNotFound
	}
	return out, err
}

func (s *DataStorePg) ListDevices(page, size int) ([]inter.DeviceRecord, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	offset, limit := pageWindow(page, size)
	rows, err := s.pool.Query(ctx, `
		SELECT id, address, family, name, firmware, hardware, battery_level, created_at, last_seen
		FROM devices ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inter.DeviceRecord, error) {
		var r inter.DeviceRecord
		err := row.Scan(
			&r.ID, &r.Address, &r.Family, &r.Name, &r.Firmware, &r.Hardware,
			&r.BatteryLevel, &r.CreatedAt, &r.LastSeen,
		)
		return r, err
	})
}

func (s *DataStorePg) DestroyDevice(id string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM devices WHERE id = $1", id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM samples WHERE device_id = $1", id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM logs WHERE device_id = $1", id)
		return err
	})
}

// [采样数据]

// AppendSamples 一次往返发送整批写入
func (s *DataStorePg) AppendSamples(id string, kind inter.SampleKind, samples []inter.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	batch := &pgx.Batch{}
	for _, p := range samples {
		var details map[string]int32
		if len(p.Details) > 0 {
			details = p.Details
		}
		batch.Queue(`
			INSERT INTO samples (device_id, kind, ts, value, duration, details)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (device_id, kind, ts) DO UPDATE SET
				value=EXCLUDED.value, duration=EXCLUDED.duration, details=EXCLUDED.details`,
			id, int(kind), p.Timestamp, p.Value, p.Duration, details)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *DataStorePg) QueryRange(id string, kind inter.SampleKind, start, end int64) ([]inter.Sample, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT ts, value, duration, details FROM samples
		WHERE device_id = $1 AND kind = $2 AND ts BETWEEN $3 AND $4
		ORDER BY ts ASC`, id, int(kind), start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inter.Sample, error) {
		var p inter.Sample
		err := row.Scan(&p.Timestamp, &p.Value, &p.Duration, &p.Details)
		return p, err
	})
}

func (s *DataStorePg) QueryLatest(id string, kind inter.SampleKind) (inter.Sample, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var p inter.Sample
	err := s.pool.QueryRow(ctx, `
		SELECT ts, value, duration, details FROM samples
		WHERE device_id = $1 AND kind = $2
		ORDER BY ts DESC LIMIT 1`, id, int(kind)).Scan(&p.Timestamp, &p.Value, &p.Duration, &p.Details)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return p, false, nil
	case err != nil:
		return p, false, err
	}
	return p, true, nil
}

// [日志]

func (s *DataStorePg) WriteLog(id string, level string, message string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.pool.Exec(ctx, "INSERT INTO logs (device_id, level, message) VALUES ($1, $2, $3)", id, level, message)
	return err
}

func (s *DataStorePg) Close() error {
	s.pool.Close()
	return nil
}
