package transcript

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console prints the transcript as labelled lines. A terminal cannot rewrite
// earlier output, so a replaced user message is printed again.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) AppendMessage(role Role, text, intent string) {
	c.write(label(role, intent), text)
}

func (c *Console) ReplaceLastUserMessage(text string) {
	c.write(label(RoleUser, ""), text)
}

func (c *Console) PlayAudio(Audio) {}

// Notice prints a status line outside the conversation.
func (c *Console) Notice(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "-- %s\n", text)
}

func (c *Console) write(prefix, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := strings.Split(text, "\n")
	fmt.Fprintf(c.out, "%s: %s\n", prefix, lines[0])
	pad := strings.Repeat(" ", len(prefix)+2)
	for _, line := range lines[1:] {
		fmt.Fprintf(c.out, "%s%s\n", pad, line)
	}
}

func label(role Role, intent string) string {
	name := "You"
	if role == RoleBot {
		name = "Saarthi AI"
	}
	if intent == "" {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, strings.ToUpper(intent[:1])+intent[1:])
}
