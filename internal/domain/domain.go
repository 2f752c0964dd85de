// Package domain defines the entities of the approval workflow engine:
// users, requests, tasks, events, the workflow variant catalog,
// delegations, watchers, notifications, and attachments. Child entities
// are owned by their parent by key and are expected to be removed when
// the parent is (see Store.DeleteRequest).
package domain

import "time"

// RequestStatus is the lifecycle state of a Request.
type RequestStatus string

const (
	RequestPending           RequestStatus = "pending"
	RequestChangesRequested  RequestStatus = "changes_requested"
	RequestApproved          RequestStatus = "approved"
	RequestRejected          RequestStatus = "rejected"
	RequestWithdrawn         RequestStatus = "withdrawn"
	RequestVoided            RequestStatus = "voided"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskApproved TaskStatus = "approved"
	TaskRejected TaskStatus = "rejected"
	TaskReturned TaskStatus = "returned"
	TaskCanceled TaskStatus = "canceled"
)

// AssigneeKind is the closed set of ways a step may target task(s).
type AssigneeKind string

const (
	AssigneeManager   AssigneeKind = "manager"
	AssigneeRole      AssigneeKind = "role"
	AssigneeUser      AssigneeKind = "user"
	AssigneeUsersAll  AssigneeKind = "users_all"
	AssigneeUsersAny  AssigneeKind = "users_any"
)

// ConditionKind is the closed set of step guard predicates.
type ConditionKind string

const (
	ConditionMinAmount  ConditionKind = "min_amount"
	ConditionMaxAmount  ConditionKind = "max_amount"
	ConditionMinDays    ConditionKind = "min_days"
	ConditionDeptIn     ConditionKind = "dept_in"
	ConditionCategoryIn ConditionKind = "category_in"
)

// ScopeKind distinguishes a global workflow variant from a dept-scoped one.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeDept   ScopeKind = "dept"
)

// WatcherKind distinguishes a cc recipient from a follower.
type WatcherKind string

const (
	WatcherCC     WatcherKind = "cc"
	WatcherFollow WatcherKind = "follow"
)

// Event types appended to a request's audit trail.
const (
	EventCreated           = "created"
	EventTaskCreated       = "task_created"
	EventTaskDecided       = "task_decided"
	EventTaskReturned      = "task_returned"
	EventTaskTransferred   = "task_transferred"
	EventTaskAddSigned     = "task_addsigned"
	EventChangesRequested  = "changes_requested"
	EventResubmitted       = "resubmitted"
	EventWithdrawn         = "withdrawn"
	EventVoided            = "voided"
	EventRequestApproved   = "request_approved"
	EventRequestRejected   = "request_rejected"
)

// User is an actor known to the engine.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Dept      string `json:"dept,omitempty"`
	ManagerID *int64 `json:"manager_id,omitempty"`
	DeptID    string `json:"dept_id,omitempty"`
	Position  string `json:"position,omitempty"`
}

// Payload is the canonical decoded request payload. Only the fields the
// engine's conditions consult are named; everything else round-trips via
// Extra.
type Payload struct {
	Amount   *float64       `json:"amount,omitempty"`
	Days     *int           `json:"days,omitempty"`
	Category string         `json:"category,omitempty"`
	Extra    map[string]any `json:"-"`
}

// Request is a user-submitted approval artifact.
type Request struct {
	ID          string        `json:"id"`
	UserID      int64         `json:"user_id"`
	RequestType string        `json:"request_type"`
	WorkflowKey string        `json:"workflow_key,omitempty"`
	Title       string        `json:"title"`
	Body        string        `json:"body,omitempty"`
	Payload     *Payload      `json:"payload,omitempty"`
	Status      RequestStatus `json:"status"`
	DecidedBy   *int64        `json:"decided_by,omitempty"`
	DecidedAt   *time.Time    `json:"decided_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Task is a concrete unit of work materialized for one step of one request.
type Task struct {
	ID             string     `json:"id"`
	RequestID      string     `json:"request_id"`
	StepOrder      *int       `json:"step_order"`
	StepKey        string     `json:"step_key"`
	AssigneeUserID *int64     `json:"assignee_user_id,omitempty"`
	AssigneeRole   string     `json:"assignee_role,omitempty"`
	Status         TaskStatus `json:"status"`
	DecidedBy      *int64     `json:"decided_by,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	Comment        string     `json:"comment,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsPending reports whether the task has not yet been decided.
func (t *Task) IsPending() bool { return t.Status == TaskPending }

// RequestEvent is an append-only audit line on a request.
type RequestEvent struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	EventType    string    `json:"event_type"`
	ActorUserID  *int64    `json:"actor_user_id,omitempty"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// WorkflowVariant is a named, ordered sequence of approval steps.
type WorkflowVariant struct {
	WorkflowKey string    `json:"workflow_key"`
	RequestType string    `json:"request_type"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	ScopeKind   ScopeKind `json:"scope_kind"`
	ScopeValue  string    `json:"scope_value,omitempty"`
	Enabled     bool      `json:"enabled"`
	IsDefault   bool      `json:"is_default"`
}

// WorkflowVariantStep is one position in a WorkflowVariant.
type WorkflowVariantStep struct {
	WorkflowKey    string        `json:"workflow_key"`
	StepOrder      int           `json:"step_order"`
	StepKey        string        `json:"step_key"`
	AssigneeKind   AssigneeKind  `json:"assignee_kind"`
	AssigneeValue  string        `json:"assignee_value,omitempty"`
	ConditionKind  ConditionKind `json:"condition_kind,omitempty"`
	ConditionValue string        `json:"condition_value,omitempty"`
}

// Delegation lets a delegate act on tasks assigned to the delegator.
// At most one row exists per delegator (DelegatorUserID is the key).
type Delegation struct {
	DelegatorUserID int64     `json:"delegator_user_id"`
	DelegateUserID  int64     `json:"delegate_user_id"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RequestWatcher registers a user to receive notifications about a
// request without being an approver.
type RequestWatcher struct {
	RequestID string      `json:"request_id"`
	UserID    int64       `json:"user_id"`
	Kind      WatcherKind `json:"kind"`
}

// Notification is a per-user read-model row derived from a qualifying event.
type Notification struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	RequestID   string     `json:"request_id"`
	EventType   string     `json:"event_type"`
	ActorUserID *int64     `json:"actor_user_id,omitempty"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Attachment is a content-addressed blob reference; the blob itself lives
// outside the database (see internal/attachment).
type Attachment struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id"`
	UploaderUserID int64     `json:"uploader_user_id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"content_type,omitempty"`
	Size           int64     `json:"size"`
	StoragePath    string    `json:"storage_path"`
	CreatedAt      time.Time `json:"created_at"`
}

// eventTypesNotifying lists the event types that trigger notification fan-out.
var eventTypesNotifying = map[string]bool{
	EventChangesRequested: true,
	EventResubmitted:      true,
	EventWithdrawn:        true,
	EventVoided:           true,
	EventRequestApproved:  true,
	EventRequestRejected:  true,
	EventTaskTransferred:  true,
}

// EventTriggersNotification reports whether eventType should fan out
// notifications to watchers/owner.
func EventTriggersNotification(eventType string) bool {
	return eventTypesNotifying[eventType]
}
