package archive

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

// CallRecord is the call_records table.
type CallRecord struct {
	ID           string         `gorm:"type:varchar(64);primaryKey"`
	OwnerID      string         `gorm:"type:varchar(128);index;not null"`
	DisplayName  string         `gorm:"type:varchar(200)"`
	PersonaID    string         `gorm:"type:varchar(64);index;not null"`
	Source       string         `gorm:"type:varchar(16);not null"`
	Status       string         `gorm:"type:varchar(16);not null"`
	Provider     string         `gorm:"type:varchar(32)"`
	CallerNumber string         `gorm:"type:varchar(32)"`
	CallSID      string         `gorm:"type:varchar(64);index"`
	Transcript   datatypes.JSON `gorm:"type:jsonb;not null"`
	Notes        datatypes.JSON `gorm:"type:jsonb;not null"`
	Summary      string         `gorm:"type:text"`
	StartedAt    time.Time      `gorm:"not null"`
	EndedAt      time.Time      `gorm:"index;not null"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// Postgres writes ended calls through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the call_records table.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonArchiveWrite, "connect postgres")
	}
	return NewPostgres(db)
}

func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&CallRecord{}); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonArchiveWrite, "migrate call_records")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Save(ctx context.Context, s session.CallSession) error {
	row, err := toRow(NewRecord(s))
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonArchiveWrite, "encode call %s", s.ID)
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonArchiveWrite, "insert call %s", s.ID)
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(r Record) (CallRecord, error) {
	transcript, err := json.Marshal(r.Transcript)
	if err != nil {
		return CallRecord{}, err
	}
	notes, err := json.Marshal(r.Notes)
	if err != nil {
		return CallRecord{}, err
	}
	return CallRecord{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		DisplayName:  r.DisplayName,
		PersonaID:    r.PersonaID,
		Source:       string(r.Source),
		Status:       string(r.Status),
		Provider:     r.Provider,
		CallerNumber: r.CallerNumber,
		CallSID:      r.CallSID,
		Transcript:   datatypes.JSON(transcript),
		Notes:        datatypes.JSON(notes),
		Summary:      r.Summary,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
	}, nil
}
