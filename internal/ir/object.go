package ir

// Object is one shared entity tracked by a side's sync state.
//
// Implementations are the closed set of variants below. IsPrivatelyScoped is
// the capability query the resolver uses to decide whether an object carries
// private-only data that has not been published to the other side.
type Object interface {
	ObjectID() string
	ObjectType() string
	// References lists ids of objects this one depends on.
	References() []string
	IsPrivatelyScoped() bool
	// Fields is the full representation compared across sides.
	Fields() Map
	// Mock returns a copy safe to hand across the trust boundary.
	Mock() Object
}

// Object type tags.
const (
	TypeUserCode = "UserCode"
	TypeJob      = "Job"
	TypeResult   = "Result"
	TypeLog      = "Log"
	TypeRequest  = "Request"
)

// UserCode is an approved computation. It governs the jobs and results
// derived from it and names the user who may receive them.
type UserCode struct {
	ID            string   `yaml:"id" json:"id"`
	UserVerifyKey Identity `yaml:"user_verify_key" json:"user_verify_key"`
	ServiceFunc   string   `yaml:"service_func_name" json:"service_func_name"`
	Code          string   `yaml:"code" json:"code"`
	Status        string   `yaml:"status" json:"status"`
}

func (c *UserCode) ObjectID() string        { return c.ID }
func (c *UserCode) ObjectType() string      { return TypeUserCode }
func (c *UserCode) References() []string    { return nil }
func (c *UserCode) IsPrivatelyScoped() bool { return false }
func (c *UserCode) Mock() Object            { cp := *c; return &cp }

func (c *UserCode) Fields() Map {
	return Map{
		"type":              Str(TypeUserCode),
		"id":                Str(c.ID),
		"user_verify_key":   Str(c.UserVerifyKey.String()),
		"service_func_name": Str(c.ServiceFunc),
		"code":              Str(c.Code),
		"status":            Str(c.Status),
	}
}

// Job is one execution of a UserCode.
type Job struct {
	ID         string `yaml:"id" json:"id"`
	UserCodeID string `yaml:"user_code_id" json:"user_code_id"`
	Status     string `yaml:"status" json:"status"`
	ResultID   string `yaml:"result_id,omitempty" json:"result_id,omitempty"`
}

func (j *Job) ObjectID() string   { return j.ID }
func (j *Job) ObjectType() string { return TypeJob }

// References names only the job's UserCode. A finished job is linked to its
// result by the Result's own reference, so ResultID adds no edge.
func (j *Job) References() []string {
	if j.UserCodeID == "" {
		return nil
	}
	return []string{j.UserCodeID}
}

func (j *Job) IsPrivatelyScoped() bool { return false }
func (j *Job) Mock() Object            { cp := *j; return &cp }

func (j *Job) Fields() Map {
	return Map{
		"type":         Str(TypeJob),
		"id":           Str(j.ID),
		"user_code_id": Str(j.UserCodeID),
		"status":       Str(j.Status),
		"result_id":    Str(j.ResultID),
	}
}

// Result is the output of a job. Private holds the real payload; Public holds
// the placeholder the low side may always see. A result with a private payload
// that has not been published is privately scoped.
type Result struct {
	ID        string `yaml:"id" json:"id"`
	JobID     string `yaml:"job_id" json:"job_id"`
	Public    Map    `yaml:"-" json:"public,omitempty"`
	Private   Map    `yaml:"-" json:"private,omitempty"`
	Published bool   `yaml:"published" json:"published"`
}

func (r *Result) ObjectID() string   { return r.ID }
func (r *Result) ObjectType() string { return TypeResult }

func (r *Result) References() []string {
	if r.JobID == "" {
		return nil
	}
	return []string{r.JobID}
}

func (r *Result) IsPrivatelyScoped() bool {
	return len(r.Private) > 0 && !r.Published
}

func (r *Result) Mock() Object {
	return &Result{ID: r.ID, JobID: r.JobID, Public: r.Public.Clone(), Published: r.Published}
}

func (r *Result) Fields() Map {
	m := Map{
		"type":      Str(TypeResult),
		"id":        Str(r.ID),
		"job_id":    Str(r.JobID),
		"published": Bool(r.Published),
	}
	if r.Public != nil {
		m["public"] = r.Public.Clone()
	}
	if r.Private != nil {
		m["private"] = r.Private.Clone()
	}
	return m
}

// Log is the captured output of a job. PrivateStdout is only visible on the
// side that ran the job until it is published.
type Log struct {
	ID            string `yaml:"id" json:"id"`
	JobID         string `yaml:"job_id" json:"job_id"`
	Stdout        string `yaml:"stdout" json:"stdout"`
	PrivateStdout string `yaml:"private_stdout,omitempty" json:"private_stdout,omitempty"`
	Published     bool   `yaml:"published" json:"published"`
}

func (l *Log) ObjectID() string   { return l.ID }
func (l *Log) ObjectType() string { return TypeLog }

func (l *Log) References() []string {
	if l.JobID == "" {
		return nil
	}
	return []string{l.JobID}
}

func (l *Log) IsPrivatelyScoped() bool {
	return l.PrivateStdout != "" && !l.Published
}

func (l *Log) Mock() Object {
	return &Log{ID: l.ID, JobID: l.JobID, Stdout: l.Stdout, Published: l.Published}
}

func (l *Log) Fields() Map {
	return Map{
		"type":           Str(TypeLog),
		"id":             Str(l.ID),
		"job_id":         Str(l.JobID),
		"stdout":         Str(l.Stdout),
		"private_stdout": Str(l.PrivateStdout),
		"published":      Bool(l.Published),
	}
}

// Request asks the data owner to approve a UserCode.
type Request struct {
	ID         string `yaml:"id" json:"id"`
	UserCodeID string `yaml:"user_code_id" json:"user_code_id"`
	Status     string `yaml:"status" json:"status"`
}

func (r *Request) ObjectID() string   { return r.ID }
func (r *Request) ObjectType() string { return TypeRequest }

func (r *Request) References() []string {
	if r.UserCodeID == "" {
		return nil
	}
	return []string{r.UserCodeID}
}

func (r *Request) IsPrivatelyScoped() bool { return false }
func (r *Request) Mock() Object            { cp := *r; return &cp }

func (r *Request) Fields() Map {
	return Map{
		"type":         Str(TypeRequest),
		"id":           Str(r.ID),
		"user_code_id": Str(r.UserCodeID),
		"status":       Str(r.Status),
	}
}
