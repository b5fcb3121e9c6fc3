package alert

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/engine"
)

var animals = []string{
	"dog",
	"cat",
	"mouse",
	"hamster",
	"rabbit",
	"bear",
	"koala",
	"tiger",
	"panda_face",
	"lion_face",
	"cow",
	"pig",
	"frog",
	"octopus",
	"monkey_face",
}

// Identity is the persona a process posts under.
type Identity struct {
	Emoji string
	Name  string
}

// RandomIdentity picks an animal from the fixed list.
func RandomIdentity(r *rand.Rand) Identity {
	var emoji string
	if r == nil {
		emoji = animals[rand.IntN(len(animals))]
	} else {
		emoji = animals[r.IntN(len(animals))]
	}
	return Identity{Emoji: emoji, Name: strings.TrimSuffix(emoji, "_face")}
}

const failureTemplate = ":rotating_light: *TEST FAILED* :rotating_light:\n" +
	"*Test name*: `%s`\n" +
	"*Browser*: %s\n" +
	"*URL*: %s\n" +
	"*Repro*: In directory `%s`, run `%s`\n" +
	"*Error*:\n```\n%s\n```\n" +
	"*Browser console errors*:\n```\n%s\n```\n"

// FailureMessage renders the failure report posted to the channel.
func FailureMessage(f engine.Failure, reproDir string) string {
	return fmt.Sprintf(failureTemplate,
		f.Test,
		f.Browser.Title(),
		f.URL,
		reproDir,
		ReproCommand(f.Test, f.Browser, BaseURL(f.URL)),
		f.Diagnostics.Trace,
		f.Diagnostics.ConsoleLog,
	)
}

// ReproCommand reruns a single test and pauses at the failure.
func ReproCommand(test string, browser driver.Kind, baseURL string) string {
	return shellescape.QuoteCommand([]string{
		"e2erun", "run",
		"--pause-on-err",
		"--filter=" + test,
		"--browser=" + string(browser),
		"--url=" + baseURL,
	})
}

// BaseURL reduces raw to scheme://host[:port]. Unparseable input is
// returned unchanged.
func BaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	base := u.Scheme + "://" + u.Hostname()
	if port := u.Port(); port != "" {
		base += ":" + port
	}
	return base
}

func announcement(id Identity, browser driver.Kind, tests []string) string {
	return fmt.Sprintf(":%s: Hi, I'm the end-to-end test %s for %s! I'll run the following tests in a loop and post errors to this channel until I retire:\n```\n%s\n```\n",
		id.Emoji, id.Name, browser.Title(), strings.Join(tests, "\n"))
}

func deathNotice(id Identity, browser driver.Kind) string {
	return fmt.Sprintf(":%s: *->* :skull: The end-to-end test %s for %s has died.", id.Emoji, id.Name, browser.Title())
}
