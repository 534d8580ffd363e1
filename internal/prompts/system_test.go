package prompts

import (
	"strings"
	"testing"
)

func TestComposeIdentityOnly(t *testing.T) {
	got := Compose(BaseIdentity(), "", "")
	if got != BaseIdentity() {
		t.Error("empty sections must not add headings")
	}
}

func TestComposeAllSections(t *testing.T) {
	got := Compose("You are microbot.", "- likes tea", "- search: Search the web\n")

	if !strings.HasPrefix(got, "You are microbot.") {
		t.Errorf("identity not first: %q", got)
	}
	if !strings.Contains(got, "## Memory") || !strings.Contains(got, "- likes tea") {
		t.Errorf("memory section missing: %q", got)
	}
	if !strings.Contains(got, "## Skills") || !strings.Contains(got, "- search:") {
		t.Errorf("skills section missing: %q", got)
	}
	if strings.Index(got, "## Memory") > strings.Index(got, "## Skills") {
		t.Error("memory section must precede skills section")
	}
}

func TestBaseIdentityDescribesCallFormat(t *testing.T) {
	// The default identity must teach the tagged-block call grammar the
	// parser understands.
	id := BaseIdentity()
	if !strings.Contains(id, "<skill-name>") {
		t.Errorf("identity missing call format: %q", id)
	}
}
