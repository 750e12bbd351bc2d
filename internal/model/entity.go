package model

import (
	"strconv"
	"time"
)

type TicketStatus string

const (
	TicketStatusPending TicketStatus = "PENDING"
	TicketStatusLocked  TicketStatus = "LOCKED"
	TicketStatusReplied TicketStatus = "REPLIED"
)

// Column is an ordinal position in the ticket table. Existing sheets address these by index,
// so the order must never change.
type Column int

const (
	ColTimestamp Column = iota
	ColAlias
	ColAge
	ColQuestion
	ColReply
	ColCode
	ColReserved
	ColZone
	ColStatus
	ColLockedBy
	ColRequesterID

	ColumnCount int = iota
)

var columnNames = [ColumnCount]string{
	"timestamp", "alias", "age", "question", "reply", "code",
	"reserved", "zone", "status", "locked_by", "requester_id",
}

// Name is the storage column name for the ordinal.
func (c Column) Name() string {
	if c < 0 || int(c) >= ColumnCount {
		return ""
	}
	return columnNames[c]
}

func (c Column) Valid() bool { return c >= 0 && int(c) < ColumnCount }

// Cell is one column value, used for partial updates and conditions.
type Cell struct {
	Col   Column
	Value string
}

// Row is one ticket row as the record store sees it. ID is the store's row handle.
type Row struct {
	ID    uint64
	Cells [ColumnCount]string
}

func (r Row) Get(c Column) string {
	if !c.Valid() {
		return ""
	}
	return r.Cells[c]
}

// Ticket is the typed view of a Row.
type Ticket struct {
	RowID       uint64
	CreatedAt   string
	Alias       string
	Age         int
	Zone        string
	Question    string
	Code        string
	Status      TicketStatus
	LockedBy    string
	Reply       string
	RequesterID string
}

func TicketFromRow(r Row) Ticket {
	age, _ := strconv.Atoi(r.Get(ColAge))
	return Ticket{
		RowID:       r.ID,
		CreatedAt:   r.Get(ColTimestamp),
		Alias:       r.Get(ColAlias),
		Age:         age,
		Zone:        r.Get(ColZone),
		Question:    r.Get(ColQuestion),
		Code:        r.Get(ColCode),
		Status:      TicketStatus(r.Get(ColStatus)),
		LockedBy:    r.Get(ColLockedBy),
		Reply:       r.Get(ColReply),
		RequesterID: r.Get(ColRequesterID),
	}
}

func (t Ticket) Row() Row {
	var r Row
	r.ID = t.RowID
	r.Cells[ColTimestamp] = t.CreatedAt
	r.Cells[ColAlias] = t.Alias
	r.Cells[ColAge] = strconv.Itoa(t.Age)
	r.Cells[ColQuestion] = t.Question
	r.Cells[ColReply] = t.Reply
	r.Cells[ColCode] = t.Code
	r.Cells[ColZone] = t.Zone
	r.Cells[ColStatus] = string(t.Status)
	r.Cells[ColLockedBy] = t.LockedBy
	r.Cells[ColRequesterID] = t.RequesterID
	return r
}

// TicketRecord is the gorm mapping of a ticket row; column names follow Column.Name.
type TicketRecord struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	Timestamp   string `gorm:"column:timestamp;type:varchar(32);not null" json:"timestamp"`
	Alias       string `gorm:"column:alias;type:varchar(255)" json:"alias"`
	Age         string `gorm:"column:age;type:varchar(16)" json:"age"`
	Question    string `gorm:"column:question;type:text" json:"question"`
	Reply       string `gorm:"column:reply;type:text" json:"reply,omitempty"`
	Code        string `gorm:"column:code;type:varchar(32);uniqueIndex;not null" json:"code"`
	Reserved    string `gorm:"column:reserved;type:varchar(255)" json:"-"`
	Zone        string `gorm:"column:zone;type:varchar(64);index" json:"zone"`
	Status      string `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	LockedBy    string `gorm:"column:locked_by;type:varchar(64)" json:"locked_by,omitempty"`
	RequesterID string `gorm:"column:requester_id;type:varchar(64);index" json:"requester_id"`
}

func (TicketRecord) TableName() string { return "tickets" }

func (r *TicketRecord) ToRow() Row {
	return Row{
		ID: r.ID,
		Cells: [ColumnCount]string{
			r.Timestamp, r.Alias, r.Age, r.Question, r.Reply, r.Code,
			r.Reserved, r.Zone, r.Status, r.LockedBy, r.RequesterID,
		},
	}
}

func TicketRecordFromRow(row Row) *TicketRecord {
	c := row.Cells
	return &TicketRecord{
		ID:          row.ID,
		Timestamp:   c[ColTimestamp],
		Alias:       c[ColAlias],
		Age:         c[ColAge],
		Question:    c[ColQuestion],
		Reply:       c[ColReply],
		Code:        c[ColCode],
		Reserved:    c[ColReserved],
		Zone:        c[ColZone],
		Status:      c[ColStatus],
		LockedBy:    c[ColLockedBy],
		RequesterID: c[ColRequesterID],
	}
}

type RiskClass string

const (
	RiskLow  RiskClass = "RENDAH"
	RiskHigh RiskClass = "TINGGI"
)

// RiskEntry is one append-only risk quiz outcome.
type RiskEntry struct {
	Timestamp      string
	Alias          string
	Age            int
	Score          int
	Classification RiskClass
	Zone           string
}

type RiskLogRecord struct {
	ID             uint64    `gorm:"primaryKey"`
	Timestamp      string    `gorm:"type:varchar(32);not null"`
	Alias          string    `gorm:"type:varchar(255)"`
	Age            int       `gorm:"not null"`
	Score          int       `gorm:"not null"`
	Classification string    `gorm:"type:varchar(16);not null"`
	Zone           string    `gorm:"type:varchar(64)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (RiskLogRecord) TableName() string { return "risk_logs" }
