package store

import (
	"time"

	"github.com/ardhanurfan/member-dashboard/internal/member"
)

type memberModel struct {
	ID    string `gorm:"primaryKey;type:uuid"`
	Name  string `gorm:"not null"`
	Email string `gorm:"uniqueIndex;not null"`
}

func (memberModel) TableName() string { return "member" }

type permissionModel struct {
	ID        string       `gorm:"primaryKey;type:uuid"`
	MemberID  string       `gorm:"index;not null;type:uuid"`
	Role      string       `gorm:"not null"`
	Status    string       `gorm:"not null"`
	CreatedAt time.Time    `gorm:"autoCreateTime"`
	Member    *memberModel `gorm:"foreignKey:MemberID;references:ID;constraint:OnDelete:CASCADE"`
}

func (permissionModel) TableName() string { return "permission" }

func toMember(m *memberModel) *member.Member {
	if m == nil {
		return nil
	}
	return &member.Member{ID: m.ID, Name: m.Name, Email: m.Email}
}

func toPermission(p permissionModel) member.Permission {
	return member.Permission{
		ID:        p.ID,
		MemberID:  p.MemberID,
		Role:      member.Role(p.Role),
		Status:    member.Status(p.Status),
		CreatedAt: p.CreatedAt,
	}
}
