package DataStore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	_ "modernc.org/sqlite"
)

// DataStoreSql 基于 SQLite 的 inter.DataStore 实现
type DataStoreSql struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS devices (
   id            TEXT PRIMARY KEY,
   address       TEXT NOT NULL,
   family        TEXT NOT NULL,
   name          TEXT,
   firmware      TEXT,
   hardware      TEXT,
   battery_level INTEGER DEFAULT -1,
   created_at    DATETIME,
   last_seen     DATETIME
);

CREATE TABLE IF NOT EXISTS samples (
   device_id TEXT NOT NULL,
   kind      INTEGER NOT NULL,
   ts        BIGINT NOT NULL,
   value     INTEGER NOT NULL,
   duration  INTEGER DEFAULT 0,
   details   TEXT,
   PRIMARY KEY (device_id, kind, ts)
);

CREATE TABLE IF NOT EXISTS logs (
   id         INTEGER PRIMARY KEY AUTOINCREMENT,
   device_id  TEXT,
   level      TEXT,
   message    TEXT,
   created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_logs_device ON logs (device_id);
`

func NewDataStoreSql(dbPath string) (inter.DataStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// 单连接避免 SQLITE_BUSY，写入本就由会话串行产生
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &DataStoreSql{db: db}, nil
}

// [设备记录]

// SaveDevice 以 id 为主键插入或覆盖
func (s *DataStoreSql) SaveDevice(rec inter.DeviceRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO devices (id, address, family, name, firmware, hardware, battery_level, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			address=excluded.address, family=excluded.family, name=excluded.name,
			firmware=excluded.firmware, hardware=excluded.hardware,
			battery_level=excluded.battery_level, last_seen=excluded.last_seen`,
		rec.ID, rec.Address, rec.Family, rec.Name, rec.Firmware, rec.Hardware,
		rec.BatteryLevel, rec.CreatedAt, rec.LastSeen,
	)
	return err
}

func (s *DataStoreSql) LoadDevice(id string) (out inter.DeviceRecord, err error) {
	err = s.db.QueryRow(`
		SELECT id, address, family, name, firmware, hardware, battery_level, created_at, last_seen
		FROM devices WHERE id = ?`, id).Scan(
		&out.ID, &out.Address, &out.Family, &out.Name, &out.Firmware, &out.Hardware,
		&out.BatteryLevel, &out.CreatedAt, &out.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return out, inter.ErrDeviceNotFound
	}
	return out, err
}

// ListDevices 按创建时间分页
func (s *DataStoreSql) ListDevices(page, size int) ([]inter.DeviceRecord, error) {
	offset, limit := pageWindow(page, size)
	rows, err := s.db.Query(`
		SELECT id, address, family, name, firmware, hardware, battery_level, created_at, last_seen
		FROM devices ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []inter.DeviceRecord
	for rows.Next() {
		var r inter.DeviceRecord
		if err := rows.Scan(
			&r.ID, &r.Address, &r.Family, &r.Name, &r.Firmware, &r.Hardware,
			&r.BatteryLevel, &r.CreatedAt, &r.LastSeen,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DestroyDevice 物理删除设备及其所有关联数据
func (s *DataStoreSql) DestroyDevice(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"devices", "samples", "logs"} {
		col := "device_id"
		if table == "devices" {
			col = "id"
		}
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE "+col+" = ?", id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// [采样数据]

// AppendSamples 在一个事务内批量写入，同一时间戳覆盖旧值
func (s *DataStoreSql) AppendSamples(id string, kind inter.SampleKind, samples []inter.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO samples (device_id, kind, ts, value, duration, details)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range samples {
		details, err := encodeDetails(p.Details)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(id, int(kind), p.Timestamp, p.Value, p.Duration, details); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DataStoreSql) QueryRange(id string, kind inter.SampleKind, start, end int64) ([]inter.Sample, error) {
	rows, err := s.db.Query(`
		SELECT ts, value, duration, details FROM samples
		WHERE device_id = ? AND kind = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`, id, int(kind), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inter.Sample
	for rows.Next() {
		p, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *DataStoreSql) QueryLatest(id string, kind inter.SampleKind) (inter.Sample, bool, error) {
	row := s.db.QueryRow(`
		SELECT ts, value, duration, details FROM samples
		WHERE device_id = ? AND kind = ?
		ORDER BY ts DESC LIMIT 1`, id, int(kind))
	p, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

// [日志]

func (s *DataStoreSql) WriteLog(id string, level string, message string) error {
	// 时间戳由数据库默认值生成
	_, err := s.db.Exec("INSERT INTO logs (device_id, level, message) VALUES (?, ?, ?)", id, level, message)
	return err
}

func (s *DataStoreSql) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(r scanner) (inter.Sample, error) {
	var p inter.Sample
	var details sql.NullString
	if err := r.Scan(&p.Timestamp, &p.Value, &p.Duration, &details); err != nil {
		return p, err
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &p.Details); err != nil {
			return p, fmt.Errorf("解析采样附加字段失败: %w", err)
		}
	}
	return p, nil
}

func encodeDetails(d map[string]int32) (sql.NullString, error) {
	if len(d) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// pageWindow page 从 1 开始，非法参数按第一页、每页 20 条处理
func pageWindow(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	return (page - 1) * size, size
}
