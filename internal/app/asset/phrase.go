package asset

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a requested language has no phrase catalog.
const DefaultLanguage = "en"

const (
	keyUnit    = "speech.unit"
	keyFinal   = "speech.final"
	keyPrepare = "speech.prepare"
)

type phraseFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

//go:embed locales/*.yaml
var localeFS embed.FS

var supportedLanguages = mustRegisterPhrases(localeFS)

// Phrasebook renders spoken announcements in one language.
type Phrasebook struct {
	tag     language.Tag
	printer *message.Printer
}

// NewPhrasebook creates a phrasebook for the closest supported language to lang.
func NewPhrasebook(lang string) (*Phrasebook, error) {
	requested := language.Make(DefaultLanguage)
	if strings.TrimSpace(lang) != "" {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse speech language %q", lang)
		}
		requested = tag
	}

	matcher := language.NewMatcher(supportedLanguages)
	_, index, _ := matcher.Match(requested)
	tag := supportedLanguages[index]

	return &Phrasebook{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}, nil
}

// Language returns the language phrases are rendered in.
func (p *Phrasebook) Language() string {
	return p.tag.String()
}

// Prepare returns the phrase spoken at the start of the preparation segment.
func (p *Phrasebook) Prepare() string {
	return p.printer.Sprintf(keyPrepare)
}

// Elapsed returns the phrase announcing elapsed minutes.
// The final marker is appended only for the last repeat; otherwise the phrase
// ends with the separator.
func (p *Phrasebook) Elapsed(minutes int, final bool) string {
	marker := ""
	if final {
		marker = p.printer.Sprintf(keyFinal)
	}
	return fmt.Sprintf("%d %s %s", minutes, p.printer.Sprintf(keyUnit), marker)
}

// Languages returns the languages with a phrase catalog.
func Languages() []string {
	out := make([]string, 0, len(supportedLanguages))
	for _, tag := range supportedLanguages {
		out = append(out, tag.String())
	}
	return out
}

func mustRegisterPhrases(fsys fs.FS) []language.Tag {
	tags, err := registerPhrases(fsys)
	if err != nil {
		panic(err)
	}
	return tags
}

// registerPhrases loads every locale catalog and registers its messages with
// x/text. The default language is always first so it wins unmatched requests.
func registerPhrases(fsys fs.FS) ([]language.Tag, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to glob phrase catalogs")
	}
	sort.Strings(paths)

	var tags []language.Tag
	hasDefault := false
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read phrase catalog %s", p)
		}

		var file phraseFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.Wrapf(err, "failed to parse phrase catalog %s", p)
		}

		want := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if file.Locale != want {
			return nil, errors.Newf("phrase catalog %s: locale %q must match file name", p, file.Locale)
		}
		for _, key := range []string{keyUnit, keyFinal, keyPrepare} {
			if _, ok := file.Messages[key]; !ok {
				return nil, errors.Newf("phrase catalog %s: missing key %q", p, key)
			}
		}

		tag, err := language.Parse(file.Locale)
		if err != nil {
			return nil, errors.Wrapf(err, "phrase catalog %s", p)
		}
		for key, msg := range file.Messages {
			if err := message.SetString(tag, key, msg); err != nil {
				return nil, errors.Wrapf(err, "phrase catalog %s: key %q", p, key)
			}
		}

		if file.Locale == DefaultLanguage {
			hasDefault = true
			tags = append([]language.Tag{tag}, tags...)
		} else {
			tags = append(tags, tag)
		}
	}

	if !hasDefault {
		return nil, errors.Newf("phrase catalog for default language %q is missing", DefaultLanguage)
	}
	return tags, nil
}
