// Package models defines the records kept in the finance store.
package models

import (
	"strings"
	"time"
)

// Role is a user's permission tier.
type Role string

const (
	RolePersonal  Role = "personal"
	RoleExecutive Role = "executive"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePersonal, RoleExecutive, RoleAdmin:
		return true
	}
	return false
}

// Permissions returns the default permission set of r.
func (r Role) Permissions() []string {
	personal := []string{
		"transactions:read", "transactions:write",
		"categories:read", "categories:write",
		"budgets:read", "budgets:write",
		"goals:read", "goals:write",
		"reports:read",
	}

	switch r {
	case RoleAdmin:
		return []string{"all:read", "all:write", "all:delete", "system:admin"}
	case RoleExecutive:
		return append(personal,
			"reports:advanced", "analytics:read", "simulation:read",
			"export:advanced", "management:read")
	default:
		return append(personal, "export:basic")
	}
}

type NotificationPreferences struct {
	BudgetAlerts   bool `json:"budgetAlerts"`
	GoalReminders  bool `json:"goalReminders"`
	BillReminders  bool `json:"billReminders"`
	WeeklyReports  bool `json:"weeklyReports"`
	MonthlyReports bool `json:"monthlyReports"`
}

type PrivacyPreferences struct {
	DataRetention     int  `json:"dataRetention"` // days
	AutoBackup        bool `json:"autoBackup"`
	EncryptionEnabled bool `json:"encryptionEnabled"`
}

type Preferences struct {
	Currency            string                  `json:"currency"`
	Locale              string                  `json:"locale"`
	Theme               string                  `json:"theme"`
	DateFormat          string                  `json:"dateFormat"`
	NumberFormat        string                  `json:"numberFormat"`
	Timezone            string                  `json:"timezone"`
	DefaultDashboardTab string                  `json:"defaultDashboardTab"`
	Notifications       NotificationPreferences `json:"notifications"`
	Privacy             PrivacyPreferences      `json:"privacy"`
}

// DefaultPreferences is what a new user starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		Currency:            "IDR",
		Locale:              "id-ID",
		Theme:               "dark",
		DateFormat:          "dd/MM/yyyy",
		NumberFormat:        "id-ID",
		Timezone:            "Asia/Jakarta",
		DefaultDashboardTab: "overview",
		Notifications: NotificationPreferences{
			BudgetAlerts:   true,
			GoalReminders:  true,
			BillReminders:  true,
			WeeklyReports:  false,
			MonthlyReports: true,
		},
		Privacy: PrivacyPreferences{
			DataRetention:     365,
			AutoBackup:        true,
			EncryptionEnabled: true,
		},
	}
}

type SecuritySettings struct {
	SessionTimeout   int  `json:"sessionTimeout"` // minutes
	RequireReauth    bool `json:"requireReauth"`
	TwoFactorEnabled bool `json:"twoFactorEnabled"`
}

type UserState struct {
	IsFirstLogin        bool       `json:"isFirstLogin"`
	OnboardingCompleted bool       `json:"onboardingCompleted"`
	LastBackupDate      *time.Time `json:"lastBackupDate"`
	DataVersion         string     `json:"dataVersion"`
}

// User is the public view of an account. It never carries credentials.
type User struct {
	ID          string           `json:"id"`
	Username    string           `json:"username"`
	Email       *string          `json:"email,omitempty"`
	FirstName   string           `json:"firstName,omitempty"`
	LastName    string           `json:"lastName,omitempty"`
	Role        Role             `json:"role"`
	Permissions []string         `json:"permissions"`
	Preferences Preferences      `json:"preferences"`
	Security    SecuritySettings `json:"security"`
	State       UserState        `json:"state"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	LastLoginAt *time.Time       `json:"lastLoginAt,omitempty"`
}

// UserRecord is the stored form of a user: the public fields plus the
// password hash and salt.
type UserRecord struct {
	User
	PasswordHash string `json:"passwordHash"`
	PasswordSalt string `json:"passwordSalt"`
}

// HasPermission reports whether u holds perm directly or through an
// "all:<action>" grant.
func (u *User) HasPermission(perm string) bool {
	action := perm
	if i := strings.LastIndexByte(perm, ':'); i >= 0 {
		action = perm[i+1:]
	}
	for _, p := range u.Permissions {
		if p == perm || p == "all:"+action {
			return true
		}
	}
	return false
}

// Session proves an earlier login until ExpiresAt.
type Session struct {
	UserID       string    `json:"userId"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Valid reports whether s is still usable at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}
