package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/internal/repository"
)

type counterKey struct {
	configurationID string
	scopeYear       int
}

// memState is an in-memory stand-in for the registry tables.
type memState struct {
	mu          sync.Mutex
	seq         int
	configs     map[string]models.RegisterConfiguration
	counters    map[counterKey]int64
	documents   map[string]models.Document
	steps       map[string]models.WorkflowStep
	stepOrder   map[string]int
	users       map[string]bool
	departments map[string][]string

	incrementErrs []error
	createErrs    []error
}

func newMemState() *memState {
	return &memState{
		configs:     make(map[string]models.RegisterConfiguration),
		counters:    make(map[counterKey]int64),
		documents:   make(map[string]models.Document),
		steps:       make(map[string]models.WorkflowStep),
		stepOrder:   make(map[string]int),
		users:       make(map[string]bool),
		departments: make(map[string][]string),
	}
}

func (s *memState) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type memSnapshot struct {
	seq       int
	counters  map[counterKey]int64
	documents map[string]models.Document
	steps     map[string]models.WorkflowStep
	stepOrder map[string]int
	configs   map[string]models.RegisterConfiguration
}

func (s *memState) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		seq:       s.seq,
		counters:  make(map[counterKey]int64, len(s.counters)),
		documents: make(map[string]models.Document, len(s.documents)),
		steps:     make(map[string]models.WorkflowStep, len(s.steps)),
		stepOrder: make(map[string]int, len(s.stepOrder)),
		configs:   make(map[string]models.RegisterConfiguration, len(s.configs)),
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	for k, v := range s.documents {
		snap.documents[k] = v
	}
	for k, v := range s.steps {
		snap.steps[k] = v
	}
	for k, v := range s.stepOrder {
		snap.stepOrder[k] = v
	}
	for k, v := range s.configs {
		snap.configs[k] = v
	}
	return snap
}

func (s *memState) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = snap.counters
	s.documents = snap.documents
	s.steps = snap.steps
	s.stepOrder = snap.stepOrder
	s.configs = snap.configs
}

// memTx serializes units of work and rolls the state back when fn fails.
type memTx struct {
	mu    sync.Mutex
	state *memState
	calls int
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	snap := t.state.snapshot()
	if err := fn(ctx); err != nil {
		t.state.restore(snap)
		return err
	}
	return nil
}

type memConfigs struct{ state *memState }

func (r memConfigs) GetByID(ctx context.Context, id string) (*models.RegisterConfiguration, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	cfg, ok := r.state.configs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &cfg, nil
}

type memCounters struct{ state *memState }

func (r memCounters) Increment(ctx context.Context, configurationID string, scopeYear int, startingNumber int64) (int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if len(r.state.incrementErrs) > 0 {
		err := r.state.incrementErrs[0]
		r.state.incrementErrs = r.state.incrementErrs[1:]
		return 0, err
	}
	key := counterKey{configurationID, scopeYear}
	current, ok := r.state.counters[key]
	if !ok {
		r.state.counters[key] = startingNumber
		return startingNumber, nil
	}
	r.state.counters[key] = current + 1
	return current + 1, nil
}

func (r memCounters) HasCounter(ctx context.Context, configurationID string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for key := range r.state.counters {
		if key.configurationID == configurationID {
			return true, nil
		}
	}
	return false, nil
}

type memDocuments struct{ state *memState }

func (r memDocuments) Create(ctx context.Context, doc *models.Document) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if len(r.state.createErrs) > 0 {
		err := r.state.createErrs[0]
		r.state.createErrs = r.state.createErrs[1:]
		return err
	}
	if doc.ID == "" {
		doc.ID = r.state.nextID("doc")
	}
	if doc.RegistrationNumber != nil {
		for _, other := range r.state.documents {
			if other.ConfigurationID == doc.ConfigurationID && other.RegistrationNumber != nil &&
				*other.RegistrationNumber == *doc.RegistrationNumber && *other.NumberScopeYear == *doc.NumberScopeYear {
				return fmt.Errorf("duplicate registration number %d", *doc.RegistrationNumber)
			}
		}
	}
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	r.state.documents[doc.ID] = *doc
	return nil
}

func (r memDocuments) GetByID(ctx context.Context, id string) (*models.Document, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	doc, ok := r.state.documents[id]
	if !ok || doc.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (r memDocuments) GetForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.GetByID(ctx, id)
}

func (r memDocuments) Update(ctx context.Context, doc *models.Document) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.documents[doc.ID]; !ok {
		return sql.ErrNoRows
	}
	r.state.documents[doc.ID] = *doc
	return nil
}

func (r memDocuments) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, updatedBy string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	doc, ok := r.state.documents[id]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Status = status
	doc.UpdatedBy = &updatedBy
	r.state.documents[id] = doc
	return nil
}

func (r memDocuments) SoftDelete(ctx context.Context, id, deletedBy string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	doc, ok := r.state.documents[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	doc.DeletedAt = &now
	r.state.documents[id] = doc
	return nil
}

func (r memDocuments) HardDelete(ctx context.Context, id string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.documents[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.state.documents, id)
	for stepID, step := range r.state.steps {
		if step.DocumentID == id {
			delete(r.state.steps, stepID)
		}
	}
	return nil
}

func (r memDocuments) IsVisibleTo(ctx context.Context, id string, actor models.Actor) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	doc, ok := r.state.documents[id]
	if !ok || doc.DeletedAt != nil {
		return false, nil
	}
	if actor.IsAdmin() || doc.CreatedBy == actor.UserID || (actor.UnitID != "" && doc.UnitID == actor.UnitID) {
		return true, nil
	}
	for _, step := range r.state.steps {
		if step.DocumentID != id {
			continue
		}
		if step.AddressedTo(actor.UserID) {
			return true, nil
		}
		if step.ToDepartmentID != nil && r.state.isMember(actor.UserID, *step.ToDepartmentID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) isMember(userID, departmentID string) bool {
	for _, member := range s.departments[departmentID] {
		if member == userID {
			return true
		}
	}
	return false
}

type memSteps struct{ state *memState }

func (r memSteps) Create(ctx context.Context, step *models.WorkflowStep) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if step.ID == "" {
		step.ID = r.state.nextID("step")
	}
	if step.StepStatus == "" {
		step.StepStatus = models.StepStatusPending
	}
	r.state.steps[step.ID] = *step
	r.state.stepOrder[step.ID] = r.state.seq
	r.state.seq++
	return nil
}

func (r memSteps) GetByID(ctx context.Context, id string) (*models.WorkflowStep, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	step, ok := r.state.steps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &step, nil
}

func (r memSteps) ListByDocument(ctx context.Context, documentID string) ([]models.WorkflowStep, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.stepsOf(documentID), nil
}

func (s *memState) stepsOf(documentID string) []models.WorkflowStep {
	result := make([]models.WorkflowStep, 0)
	for _, step := range s.steps {
		if step.DocumentID == documentID {
			result = append(result, step)
		}
	}
	sort.Slice(result, func(i, j int) bool { return s.stepOrder[result[i].ID] < s.stepOrder[result[j].ID] })
	return result
}

func (r memSteps) Complete(ctx context.Context, params repository.CompleteStepParams) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	step, ok := r.state.steps[params.ID]
	if !ok || !step.Pending() {
		return sql.ErrNoRows
	}
	action := params.Action
	completedBy := params.CompletedBy
	completedAt := params.CompletedAt
	step.StepStatus = models.StepStatusCompleted
	step.Action = &action
	step.CompletionNotes = params.CompletionNotes
	step.CompletedBy = &completedBy
	step.CompletedAt = &completedAt
	r.state.steps[params.ID] = step
	return nil
}

func (r memSteps) cancelWhere(documentID, by string, notes *string, at time.Time, match func(models.WorkflowStep) bool) int64 {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var affected int64
	for id, step := range r.state.steps {
		if step.DocumentID != documentID || !step.Pending() || !match(step) {
			continue
		}
		action := models.StepActionCancelled
		completedBy := by
		completedAt := at
		step.StepStatus = models.StepStatusCompleted
		step.Action = &action
		step.CompletionNotes = notes
		step.CompletedBy = &completedBy
		step.CompletedAt = &completedAt
		r.state.steps[id] = step
		affected++
	}
	return affected
}

func (r memSteps) CancelPending(ctx context.Context, documentID, cancelledBy string, notes *string, at time.Time) (int64, error) {
	return r.cancelWhere(documentID, cancelledBy, notes, at, func(models.WorkflowStep) bool { return true }), nil
}

func (r memSteps) CancelPendingForUser(ctx context.Context, documentID, userID string, notes *string, at time.Time) (int64, error) {
	return r.cancelWhere(documentID, userID, notes, at, func(step models.WorkflowStep) bool { return step.AddressedTo(userID) }), nil
}

func (r memSteps) IsPendingRecipient(ctx context.Context, documentID, userID string, departmentIDs []string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for _, step := range r.state.stepsOf(documentID) {
		if !step.Pending() {
			continue
		}
		if step.AddressedTo(userID) {
			return true, nil
		}
		for _, dept := range departmentIDs {
			if step.ToDepartmentID != nil && *step.ToDepartmentID == dept {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r memSteps) ListInbox(ctx context.Context, filter models.InboxFilter) ([]models.WorkflowStep, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	result := make([]models.WorkflowStep, 0)
	for _, step := range r.state.steps {
		if !step.Pending() {
			continue
		}
		matched := step.AddressedTo(filter.UserID)
		for _, dept := range filter.DepartmentIDs {
			if step.ToDepartmentID != nil && *step.ToDepartmentID == dept {
				matched = true
			}
		}
		if matched {
			result = append(result, step)
		}
	}
	sort.Slice(result, func(i, j int) bool { return r.state.stepOrder[result[i].ID] < r.state.stepOrder[result[j].ID] })
	return result, nil
}

func (r memSteps) HasAny(ctx context.Context, documentID string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return len(r.state.stepsOf(documentID)) > 0, nil
}

func (r memSteps) CountPending(ctx context.Context, documentID string) (int, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	count := 0
	for _, step := range r.state.stepsOf(documentID) {
		if step.Pending() {
			count++
		}
	}
	return count, nil
}

type memDirectory struct{ state *memState }

func (r memDirectory) IsMemberOfDepartment(ctx context.Context, userID, departmentID string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.isMember(userID, departmentID), nil
}

func (r memDirectory) DepartmentsOf(ctx context.Context, userID string) ([]string, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var result []string
	for dept := range r.state.departments {
		if r.state.isMember(userID, dept) {
			result = append(result, dept)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (r memDirectory) UserExists(ctx context.Context, userID string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.users[userID], nil
}

func (r memDirectory) DepartmentExists(ctx context.Context, departmentID string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	_, ok := r.state.departments[departmentID]
	return ok, nil
}

type auditSpy struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, entry *models.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *auditSpy) History(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var logs []models.AuditLog
	for _, entry := range a.entries {
		if entry.Resource == resource && entry.ResourceID != nil && *entry.ResourceID == resourceID {
			logs = append(logs, *entry)
		}
	}
	return logs, nil
}

func (a *auditSpy) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	actions := make([]string, len(a.entries))
	for i, entry := range a.entries {
		actions[i] = entry.Action
	}
	return actions
}

// tickingClock returns strictly increasing timestamps one second apart.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

var (
	actorCreator = models.Actor{UserID: "creator", UnitID: "unit-1", Role: models.RoleRegistrar}
	actorA       = models.Actor{UserID: "user-a", UnitID: "unit-2", Role: models.RoleStaff}
	actorB       = models.Actor{UserID: "user-b", UnitID: "unit-3", Role: models.RoleStaff}
	actorOutside = models.Actor{UserID: "outsider", UnitID: "unit-9", Role: models.RoleStaff}
	actorAdmin   = models.Actor{UserID: "admin", Role: models.RoleAdmin}
)

type registryHarness struct {
	state     *memState
	tx        *memTx
	audit     *auditSpy
	numbering *NumberingService
	documents *DocumentService
	workflow  *WorkflowService
	directory *DirectoryService
}

func newRegistryHarness() *registryHarness {
	state := newMemState()
	state.configs["cfg-annual"] = models.RegisterConfiguration{ID: "cfg-annual", Name: "Incoming", Prefix: "IN", StartingNumber: 1, ResetsAnnually: true, Active: true}
	state.configs["cfg-perpetual"] = models.RegisterConfiguration{ID: "cfg-perpetual", Name: "Decrees", StartingNumber: 100, Active: true}
	state.configs["cfg-inactive"] = models.RegisterConfiguration{ID: "cfg-inactive", Name: "Old", StartingNumber: 1, Active: false}
	unit := "unit-7"
	state.configs["cfg-unit7"] = models.RegisterConfiguration{ID: "cfg-unit7", Name: "Branch 7", UnitID: &unit, StartingNumber: 1, Active: true}
	for _, user := range []string{"creator", "user-a", "user-b", "user-c", "outsider"} {
		state.users[user] = true
	}
	state.departments["dept-finance"] = []string{"user-c"}

	tx := &memTx{state: state}
	audit := &auditSpy{}
	clock := tickingClock()

	numbering := NewNumberingService(memConfigs{state}, memCounters{state}, tx, nil, nil, NumberingConfig{MaxRetries: 3})
	numbering.sleep = func(context.Context, time.Duration) error { return nil }

	documents := NewDocumentService(memDocuments{state}, memConfigs{state}, memSteps{state}, numbering, tx, audit, nil, nil)
	documents.now = clock

	directory := NewDirectoryService(memDirectory{state}, nil, nil)
	workflow := NewWorkflowService(memDocuments{state}, memSteps{state}, directory, tx, audit, nil, nil)
	workflow.now = clock

	return &registryHarness{state: state, tx: tx, audit: audit, numbering: numbering, documents: documents, workflow: workflow, directory: directory}
}

func (h *registryHarness) stepsOf(documentID string) []models.WorkflowStep {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.stepsOf(documentID)
}

func (h *registryHarness) document(id string) models.Document {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.documents[id]
}

func strPtr(value string) *string {
	return &value
}
