package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Severity is the importance level attached to a notification.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarn    Severity = "WARN"
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
)

func (s Severity) String() string { return string(s) }

func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarn, SeverityError, SeverityFatal:
		return true
	}
	return false
}

// ParseSeverityFromString parses s, defaulting an empty value to INFO.
func ParseSeverityFromString(s string) (Severity, error) {
	sv := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sv == "" {
		return SeverityInfo, nil
	}
	if !sv.IsValid() {
		return "", fmt.Errorf("%w: invalid severity %q", ErrValidation, s)
	}
	return sv, nil
}

// ReadState is the per-recipient acknowledgement state.
type ReadState string

const (
	ReadStateUnread ReadState = "UNREAD"
	ReadStateRead   ReadState = "READ"
)

func (s ReadState) String() string { return string(s) }

func (s ReadState) IsValid() bool {
	switch s {
	case ReadStateUnread, ReadStateRead:
		return true
	}
	return false
}

func ParseReadStateFromString(s string) (ReadState, error) {
	rs := ReadState(strings.ToUpper(strings.TrimSpace(s)))
	if !rs.IsValid() {
		return "", fmt.Errorf("%w: invalid read state %q", ErrValidation, s)
	}
	return rs, nil
}

// Standard keys of pre-built notification data.
const (
	DataKeyTitle      = "title"
	DataKeyMessage    = "message"
	DataKeyCreateTime = "createTime"
	DataKeyFormUser   = "formUser"
)

// NotificationData is the rendered display content of a notification.
type NotificationData struct {
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	FormUser        string         `json:"formUser,omitempty"`
	CreateTime      time.Time      `json:"createTime"`
	ExtraProperties map[string]any `json:"extraProperties,omitempty"`
}

// Clone returns a copy whose ExtraProperties can be mutated independently.
func (d NotificationData) Clone() NotificationData {
	d.ExtraProperties = maps.Clone(d.ExtraProperties)
	return d
}

// Notification is the persisted, tenant scoped materialization of an event.
// An empty TenantID denotes the host.
type Notification struct {
	ID           string
	TenantID     string
	Name         string
	Severity     Severity
	Scope        Scope
	Lifetime     Lifetime
	Data         NotificationData
	CreationTime time.Time
}

// Clone returns a copy that shares no mutable state with n.
func (n Notification) Clone() Notification {
	n.Data = n.Data.Clone()
	return n
}

// UserIdentifier identifies one recipient.
type UserIdentifier struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// UserIDs extracts the ids of users, preserving order.
func UserIDs(users []UserIdentifier) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids
}

// UserNotification associates a notification with one recipient.
type UserNotification struct {
	ID             int64
	TenantID       string
	UserID         string
	NotificationID string
	ReadState      ReadState
	CreatedAt      time.Time
}

// Subscription is a user's opt-in to a named notification within a tenant.
type Subscription struct {
	TenantID         string
	UserID           string
	UserName         string
	NotificationName string
	CreatedAt        time.Time
}

// Tenant is one entry of the tenant directory.
type Tenant struct {
	ID       string
	Name     string
	IsActive bool
}
