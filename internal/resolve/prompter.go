package resolve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/ir"
)

const sharePrompt = `You currently have the following private objects:

%s

Type the first %d characters of an id (e.g. 'abc') to share that object.
Type "no" to stop sharing.
`

const shareConfirmation = `Sharing %s #%s with %s.
The grant takes effect when the resolved state is applied.
`

// Prompter asks a human for decisions over a line-oriented stream.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

func (p *Prompter) readLine() (string, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.in.Text(), nil
}

// DecideBatch keeps asking until it reads "low" or "high".
func (p *Prompter) DecideBatch(ctx context.Context, _ *diff.ObjectDiffBatch) (Side, error) {
	fmt.Fprintln(p.out, "Do you want to keep the low state or the high state for these objects? choose 'low' or 'high'")
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := p.readLine()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("side decision: input closed")
		}
		if err != nil {
			return "", fmt.Errorf("side decision: %w", err)
		}
		side, err := ParseSide(line)
		if err == nil {
			return side, nil
		}
		fmt.Fprintln(p.out, "Please choose between `low` or `high`")
	}
}

// DecidePrivateSharing offers each candidate until all are shared or the
// user answers "no". End of input counts as "no".
func (p *Prompter) DecidePrivateSharing(ctx context.Context, user ir.Identity, candidates []*diff.ObjectDiff) ([]*diff.ObjectDiff, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	fmt.Fprintf(p.out, "This batch contains new private objects on the high side that you may want to share with user %s.\n", user)

	session := NewSharingSession(candidates)
	for !session.Finished() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(session.remaining))
		for _, d := range session.Remaining() {
			lines = append(lines, fmt.Sprintf("%s #%s", d.ObjectType, d.ObjectID))
		}
		fmt.Fprintf(p.out, sharePrompt, strings.Join(lines, "\n"), MinPrefix)

		line, err := p.readLine()
		if errors.Is(err, io.EOF) {
			session.Stop()
			break
		}
		if err != nil {
			return nil, fmt.Errorf("private sharing: %w", err)
		}

		outcome, d := session.Select(line)
		switch outcome {
		case Shared:
			fmt.Fprintf(p.out, shareConfirmation, d.ObjectType, d.ObjectID, user)
		case Ambiguous:
			fmt.Fprintln(p.out, "Found multiple matches for provided id, please type more characters")
		case Invalid:
			fmt.Fprintln(p.out, "Invalid input")
		}
	}
	return session.Shared(), nil
}
