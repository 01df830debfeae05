package repository

import (
	"github.com/kursadbilgin/notify-daemon/internal/domain"
)

// ClientModel is the persistence model for the clients table.
type ClientModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	PushID      string          `gorm:"type:varchar(255);not null;default:''"`
	Email       string          `gorm:"type:varchar(255);not null;default:''"`
	Status      domain.Status   `gorm:"type:varchar(20);not null;default:'pending'"`
	ProcName    *string         `gorm:"type:varchar(100)"`
	IsPushSent  domain.SentFlag `gorm:"type:varchar(3);not null;default:'no'"`
	IsEmailSent domain.SentFlag `gorm:"type:varchar(3);not null;default:'no'"`
}

func (ClientModel) TableName() string {
	return "clients"
}

func clientModelFromDomain(c *domain.Client) *ClientModel {
	if c == nil {
		return nil
	}

	var procName *string
	if c.ProcName != "" {
		value := c.ProcName
		procName = &value
	}

	status := c.Status
	if status == "" {
		status = domain.StatusPending
	}
	pushSent := c.IsPushSent
	if pushSent == "" {
		pushSent = domain.SentNo
	}
	emailSent := c.IsEmailSent
	if emailSent == "" {
		emailSent = domain.SentNo
	}

	return &ClientModel{
		ID:          c.ID,
		PushID:      c.PushID,
		Email:       c.Email,
		Status:      status,
		ProcName:    procName,
		IsPushSent:  pushSent,
		IsEmailSent: emailSent,
	}
}

func clientModelToDomain(m *ClientModel) *domain.Client {
	if m == nil {
		return nil
	}

	procName := ""
	if m.ProcName != nil {
		procName = *m.ProcName
	}

	return &domain.Client{
		ID:          m.ID,
		PushID:      m.PushID,
		Email:       m.Email,
		Status:      m.Status,
		ProcName:    procName,
		IsPushSent:  m.IsPushSent,
		IsEmailSent: m.IsEmailSent,
	}
}
