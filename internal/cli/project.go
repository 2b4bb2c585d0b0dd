package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
	"github.com/roach88/syncbridge/internal/store"
)

// ProjectOptions holds flags shared by the project subcommands.
type ProjectOptions struct {
	*RootOptions
	// As is the hex verify key of the caller; the node itself when empty.
	As string
}

// ProjectView is the printable summary of a project.
type ProjectView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Leader      ir.Node  `json:"leader"`
	Members     []string `json:"members"`
	Users       []string `json:"users"`
	Events      int      `json:"events"`
	StartHash   string   `json:"start_hash"`
}

func newProjectView(p *ir.Project) ProjectView {
	v := ProjectView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Leader:      p.StateSyncLeader,
		Members:     make([]string, len(p.Members)),
		Users:       make([]string, len(p.Users)),
		Events:      len(p.Events),
		StartHash:   p.StartHash,
	}
	for i, m := range p.Members {
		v.Members[i] = m.String()
	}
	for i, u := range p.Users {
		v.Users[i] = u.String()
	}
	return v
}

func (v ProjectView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", v.Name, v.ID)
	if v.Description != "" {
		fmt.Fprintf(&b, "  %s\n", v.Description)
	}
	fmt.Fprintf(&b, "  leader:  %s %s\n", v.Leader, v.Leader.Route)
	fmt.Fprintf(&b, "  members: %s\n", strings.Join(v.Members, ", "))
	fmt.Fprintf(&b, "  users:   %d\n", len(v.Users))
	fmt.Fprintf(&b, "  events:  %d", v.Events)
	return b.String()
}

// ProjectList renders several projects.
type ProjectList []ProjectView

func (l ProjectList) String() string {
	if len(l) == 0 {
		return "No projects."
	}
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\n")
}

// EventList renders events one per line in log order.
type EventList []ir.Event

func (l EventList) String() string {
	if len(l) == 0 {
		return "No events."
	}
	lines := make([]string, len(l))
	for i, ev := range l {
		lines[i] = fmt.Sprintf("#%d %s %s by %s: %s", ev.SeqNo, ev.ID, ev.Kind, ev.Creator.Short(), describeEvent(ev))
	}
	return strings.Join(lines, "\n")
}

func describeEvent(ev ir.Event) string {
	switch {
	case ev.Message != nil:
		if ev.Message.ParentID != "" {
			return fmt.Sprintf("%q (reply to %s)", ev.Message.Text, ev.Message.ParentID)
		}
		return fmt.Sprintf("%q", ev.Message.Text)
	case ev.Poll != nil:
		return fmt.Sprintf("%s [%s]", ev.Poll.Question, strings.Join(ev.Poll.Choices, " | "))
	case ev.Request != nil:
		return fmt.Sprintf("request %s on %s", ev.Request.RequestID, ev.Request.ServerUID)
	}
	return ""
}

// NewProjectCommand creates the project command group.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProjectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create projects and read or extend their event logs",
		Long: `Create projects and work with their event logs on this node.

Writes are only accepted on the project's leader. add-event appends locally;
broadcast appends and then delivers the event to every other member in
member order, stopping at the first member that cannot take it.`,
	}
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "act as this caller (hex verify key)")

	cmd.AddCommand(newProjectCreateCommand(opts))
	cmd.AddCommand(newProjectListCommand(opts))
	cmd.AddCommand(newProjectGetCommand(opts))
	cmd.AddCommand(newProjectSyncCommand(opts))
	cmd.AddCommand(newProjectCatchUpCommand(opts))
	cmd.AddCommand(newProjectEventCommand(opts, "add-event"))
	cmd.AddCommand(newProjectEventCommand(opts, "broadcast"))
	cmd.AddCommand(newProjectVerifyCommand(opts))
	return cmd
}

// withNode opens the node, builds the caller's credentials and runs fn.
func withNode(opts *ProjectOptions, f *OutputFormatter, fn func(n *node, cred project.Credentials) error) error {
	n, err := openNode(opts.RootOptions)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "open node", err)
	}
	defer n.Close()

	cred, err := n.credentials(opts.As)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid caller", err)
	}
	return fn(n, cred)
}

// failOp reports an error returned by the project service.
func failOp(f *OutputFormatter, message string, err error) error {
	return f.Fail(ExitFailure, errorCode(err), message, err)
}

type createOptions struct {
	*ProjectOptions
	ID          string
	Description string
	Leader      string
	Members     []string
	Users       []string
}

func newProjectCreateCommand(popts *ProjectOptions) *cobra.Command {
	opts := &createOptions{ProjectOptions: popts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Long: `Create a project. The leader defaults to this node, in which case the
node's --route is recorded as the leader route. Members and the leader
must be registered peers unless they are this node.

Example:
  syncbridge project create census --member 3b6a27bc... --user 9f86d081...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return withNode(opts.ProjectOptions, f, func(n *node, cred project.Credentials) error {
				sub, err := opts.submit(cmd, n, args[0])
				if err != nil {
					return f.Fail(ExitCommandError, errorCode(err), "invalid project", err)
				}
				p, err := n.service.CreateProject(cmd.Context(), cred, sub)
				if err != nil {
					return failOp(f, "create project", err)
				}
				return f.Success(newProjectView(p))
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "project description")
	cmd.Flags().StringVar(&opts.Leader, "leader", "", "leader verify key, hex (defaults to this node)")
	cmd.Flags().StringSliceVar(&opts.Members, "member", nil, "member verify key, hex; repeat in broadcast order")
	cmd.Flags().StringSliceVar(&opts.Users, "user", nil, "user verify key, hex; repeatable")

	return cmd
}

func (o *createOptions) submit(cmd *cobra.Command, n *node, name string) (project.Submit, error) {
	sub := project.Submit{ID: o.ID, Name: name, Description: o.Description, Leader: n.self}
	if o.Leader != "" {
		key, err := ir.ParseIdentity(o.Leader)
		if err != nil {
			return sub, fmt.Errorf("--leader: %w", err)
		}
		leader, err := n.lookupNode(cmd.Context(), key)
		if err != nil {
			return sub, fmt.Errorf("--leader: %w", err)
		}
		sub.Leader = leader
	}
	if sub.Leader.VerifyKey == n.self.VerifyKey {
		sub.LeaderRoute = n.self.Route
	}

	for _, m := range o.Members {
		key, err := ir.ParseIdentity(m)
		if err != nil {
			return sub, fmt.Errorf("--member: %w", err)
		}
		member, err := n.lookupNode(cmd.Context(), key)
		if err != nil {
			return sub, fmt.Errorf("--member: %w", err)
		}
		sub.Members = append(sub.Members, member)
	}
	for _, u := range o.Users {
		key, err := ir.ParseIdentity(u)
		if err != nil {
			return sub, fmt.Errorf("--user: %w", err)
		}
		sub.Users = append(sub.Users, key)
	}
	return sub, nil
}

func newProjectListCommand(opts *ProjectOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List projects stored on this node",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return withNode(opts, f, func(n *node, cred project.Credentials) error {
				projects, err := n.service.GetAll(cmd.Context(), cred)
				if err != nil {
					return failOp(f, "list projects", err)
				}
				list := make(ProjectList, len(projects))
				for i, p := range projects {
					list[i] = newProjectView(p)
				}
				return f.Success(list)
			})
		},
	}
}

func newProjectGetCommand(opts *ProjectOptions) *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:           "get <id-or-name>",
		Short:         "Show a project by id or name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return withNode(opts, f, func(n *node, cred project.Credentials) error {
				p, err := n.service.GetByUID(cmd.Context(), cred, args[0])
				if project.IsNotFound(err) {
					p, err = n.service.GetByName(cmd.Context(), cred, args[0])
				}
				if err != nil {
					return failOp(f, "get project", err)
				}
				if showEvents {
					return f.Success(EventList(p.Events))
				}
				return f.Success(newProjectView(p))
			})
		},
	}
	cmd.Flags().BoolVar(&showEvents, "events", false, "print the event log instead of the summary")
	return cmd
}

func newProjectSyncCommand(opts *ProjectOptions) *cobra.Command {
	var from int

	cmd := &cobra.Command{
		Use:   "sync <project-id>",
		Short: "Read the leader's log from an index onward",
		Long: `Read events from the leader's copy of a project log, starting at the
zero-based index --from. Only the project's leader serves this. A follower
that is behind reads it remotely with catch-up.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return withNode(opts, f, func(n *node, cred project.Credentials) error {
				events, err := n.service.Sync(cmd.Context(), cred, args[0], from)
				if err != nil {
					return failOp(f, "sync", err)
				}
				return f.Success(EventList(events))
			})
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "zero-based index of the first event to return")
	return cmd
}

// CatchUpView reports a follower catch-up.
type CatchUpView struct {
	ProjectID string `json:"project_id"`
	Added     int    `json:"added"`
	Events    int    `json:"events"`
}

func (v CatchUpView) String() string {
	return fmt.Sprintf("%s: %d events added, %d in log", v.ProjectID, v.Added, v.Events)
}

func newProjectCatchUpCommand(opts *ProjectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catch-up <project-id>",
		Short: "Fetch the events this follower missed from the leader",
		Long: `Open a session to the project's leader, read its log past this node's
copy and add the missing events in order. Run it on a follower that a
broadcast could not reach.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return withNode(opts, f, func(n *node, cred project.Credentials) error {
				added, err := n.service.CatchUp(cmd.Context(), cred, args[0])
				if err != nil {
					return failOp(f, "catch up", err)
				}
				p, err := n.service.GetByUID(cmd.Context(), cred, args[0])
				if err != nil {
					return failOp(f, "catch up", err)
				}
				return f.Success(CatchUpView{ProjectID: p.ID, Added: added, Events: len(p.Events)})
			})
		},
	}
}

type eventOptions struct {
	*ProjectOptions
	File      string
	Seq       int64
	Message   string
	Parent    string
	Question  string
	Choices   []string
	RequestID string
	ServerUID string
	ServerKey string
	Summary   string
}

func newProjectEventCommand(popts *ProjectOptions, use string) *cobra.Command {
	opts := &eventOptions{ProjectOptions: popts}
	broadcast := use == "broadcast"

	short := "Append an event to the leader's log"
	long := `Append an event to a project's log on the leader. The event is not
delivered to other members; use broadcast for that. An event without --seq
takes the next position in the log.`
	if broadcast {
		short = "Append an event on the leader and deliver it to every member"
		long = `Append an event on the leader and deliver it to every other member, one
at a time in member order. The leader's append is kept even when delivery
stops at an unreachable member; the members that did not receive the event
are listed; each of them recovers with project catch-up.`
	}

	cmd := &cobra.Command{
		Use:   use + " <project-id>",
		Short: short,
		Long: long + `

The event is read from --file (JSON) or built from --message, --question
with --choice, or --request-id.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return withNode(opts.ProjectOptions, f, func(n *node, cred project.Credentials) error {
				ev, err := opts.event(args[0], cred.Caller)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid event", err)
				}
				if broadcast {
					if ev.SeqNo == 0 {
						p, err := n.service.GetByUID(cmd.Context(), cred, ev.ProjectID)
						if err != nil {
							return failOp(f, "broadcast", err)
						}
						ev.SeqNo = p.NextSeq()
					}
					if err := n.service.BroadcastEvent(cmd.Context(), cred, ev); err != nil {
						return failOp(f, "broadcast", err)
					}
				} else if err := n.service.AddEvent(cmd.Context(), cred, ev); err != nil {
					return failOp(f, "add event", err)
				}

				events, err := n.store.ReadEvents(cmd.Context(), ev.ProjectID, 0)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeStore, "read back event", err)
				}
				for _, stored := range events {
					if stored.ID == ev.ID {
						return f.Success(EventList{stored})
					}
				}
				return f.Fail(ExitFailure, ErrCodeStore, "event not found after append", store.ErrNotFound)
			})
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "read the event from a JSON file")
	cmd.Flags().Int64Var(&opts.Seq, "seq", 0, "seq_no to assign (next position when 0)")
	cmd.Flags().StringVar(&opts.Message, "message", "", "message text")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "event id the message replies to")
	cmd.Flags().StringVar(&opts.Question, "question", "", "poll question")
	cmd.Flags().StringSliceVar(&opts.Choices, "choice", nil, "poll choice; repeat for each")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "id of the linked request")
	cmd.Flags().StringVar(&opts.ServerUID, "server-uid", "", "uid of the server holding the request")
	cmd.Flags().StringVar(&opts.ServerKey, "server-key", "", "verify key of the server holding the request, hex")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "request summary")
	cmd.MarkFlagsMutuallyExclusive("file", "message", "question", "request-id")

	return cmd
}

// event builds the event to append. Fields a --file event leaves empty are
// filled the same way as for a flag-built event.
func (o *eventOptions) event(projectID string, creator ir.Identity) (ir.Event, error) {
	var ev ir.Event
	switch {
	case o.File != "":
		data, err := os.ReadFile(o.File)
		if err != nil {
			return ev, err
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			return ev, fmt.Errorf("parse %s: %w", o.File, err)
		}
		if ev.ProjectID != "" && ev.ProjectID != projectID {
			return ev, fmt.Errorf("event is for project %s, not %s", ev.ProjectID, projectID)
		}
	case o.Message != "":
		ev.Kind = ir.KindMessage
		ev.Message = &ir.MessagePayload{Text: o.Message, ParentID: o.Parent}
	case o.Question != "":
		ev.Kind = ir.KindPoll
		ev.Poll = &ir.PollPayload{Question: o.Question, Choices: o.Choices}
	case o.RequestID != "":
		ev.Kind = ir.KindRequest
		ev.Request = &ir.RequestPayload{RequestID: o.RequestID, ServerUID: o.ServerUID, Summary: o.Summary}
		if o.ServerKey != "" {
			key, err := ir.ParseIdentity(o.ServerKey)
			if err != nil {
				return ev, fmt.Errorf("--server-key: %w", err)
			}
			ev.Request.ServerVerifyKey = key
		}
	default:
		return ev, fmt.Errorf("one of --file, --message, --question or --request-id is required")
	}

	if ev.ID == "" {
		ev.ID = project.UUIDv7Generator{}.Generate()
	}
	ev.ProjectID = projectID
	if ev.Creator.IsZero() {
		ev.Creator = creator
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if o.Seq != 0 {
		ev.SeqNo = o.Seq
	}
	return ev, ev.Validate()
}

// LogReport is the result of verifying a stored log.
type LogReport store.LogState

func (r LogReport) String() string {
	status := "ok"
	if !r.Contiguous {
		status = "DAMAGED"
	}
	s := fmt.Sprintf("%s: %s (%d events, %d rows, last seq %d)", r.ProjectID, status, r.EventCount, r.RowCount, r.LastSeq)
	if len(r.Gaps) > 0 {
		s += fmt.Sprintf("\n  gaps: %v", r.Gaps)
	}
	if len(r.Mismatched) > 0 {
		s += fmt.Sprintf("\n  mismatched rows: %v", r.Mismatched)
	}
	return s
}

func newProjectVerifyCommand(opts *ProjectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <project-id>",
		Short: "Check that a stored log is exactly events 1..N",
		Long: `Check the stored log of a project for missing seq_nos, rows whose payload
disagrees with their position, and a stale event count.

Exit codes:
  0 - Log is contiguous
  1 - Log is damaged
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			st, err := openStore(opts.RootOptions)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "open database", err)
			}
			defer st.Close()

			state, err := st.VerifyLog(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(ExitCommandError, errorCode(err), "verify log", err)
			}
			report := LogReport(state)
			if !state.Contiguous {
				return f.Fail(ExitFailure, ErrCodeLogInconsistent, report.String(), nil)
			}
			return f.Success(report)
		},
	}
}
