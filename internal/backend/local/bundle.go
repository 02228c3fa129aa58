package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/f1monkey/spellchecker"
)

// Bundle is one language's dictionary: an .aff file and a .dic word list.
// Affix rules are not interpreted; the .aff file only contributes the TRY
// alphabet used to generate suggestions.
type Bundle struct {
	Language string
	checker  *spellchecker.Spellchecker
	words    int
}

// Words returns the number of stems loaded.
func (b *Bundle) Words() int {
	return b.words
}

// IsCorrect reports whether word, folded to lower case, is known.
func (b *Bundle) IsCorrect(word string) bool {
	return b.checker.IsCorrect(strings.ToLower(word))
}

// Suggest returns up to n candidates for word.
func (b *Bundle) Suggest(word string, n int) []string {
	if n <= 0 {
		return nil
	}
	out, err := b.checker.Suggest(strings.ToLower(word), n)
	if err != nil {
		return nil
	}
	return out
}

// ParseBundle builds a bundle from the contents of an .aff and a .dic file.
func ParseBundle(language string, aff, dic io.Reader, maxErrors int) (*Bundle, error) {
	try, err := readTry(aff)
	if err != nil {
		return nil, fmt.Errorf("read %s.aff: %w", language, err)
	}
	words, err := readDic(dic)
	if err != nil {
		return nil, fmt.Errorf("read %s.dic: %w", language, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%s.dic: no words", language)
	}

	var sc *spellchecker.Spellchecker
	if maxErrors > 0 {
		sc, err = spellchecker.New(alphabet(try, words), spellchecker.WithMaxErrors(maxErrors))
	} else {
		sc, err = spellchecker.New(alphabet(try, words))
	}
	if err != nil {
		return nil, fmt.Errorf("build %s checker: %w", language, err)
	}
	sc.Add(words...)

	return &Bundle{Language: language, checker: sc, words: len(words)}, nil
}

// readTry returns the TRY line of an affix file, if any.
func readTry(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "TRY "); ok {
			return strings.TrimSpace(rest), nil
		}
	}
	return "", sc.Err()
}

// readDic reads a word list: an optional count on the first line, then one
// entry per line with affix flags after a slash. Entries are folded to
// lower case.
func readDic(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	seen := make(map[string]bool)
	var words []string
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			if isCount(line) {
				continue
			}
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, _, _ := strings.Cut(line, "/")
		word, _, _ = strings.Cut(word, "\t")
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
	}
	return words, sc.Err()
}

func isCount(line string) bool {
	if line == "" {
		return false
	}
	for _, r := range line {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// alphabet collects every lower-case letter seen in try and words, plus
// the apostrophe.
func alphabet(try string, words []string) string {
	seen := map[rune]bool{'\'': true}
	order := []rune{'\''}
	add := func(r rune) {
		r = unicode.ToLower(r)
		if !seen[r] {
			seen[r] = true
			order = append(order, r)
		}
	}
	for _, r := range try {
		if unicode.IsLetter(r) {
			add(r)
		}
	}
	for _, w := range words {
		for _, r := range w {
			add(r)
		}
	}
	return string(order)
}

// loadBundle reads <dir>/<lang>.aff and <dir>/<lang>.dic, downloading them
// first when missing and download is set.
func (b *Backend) loadBundle(ctx context.Context, lang string) (*Bundle, error) {
	o := b.options()
	aff := filepath.Join(o.Dir, lang+".aff")
	dic := filepath.Join(o.Dir, lang+".dic")

	if !exists(aff) || !exists(dic) {
		if !o.DownloadMissing {
			return nil, fmt.Errorf("dictionary %s not found in %s", lang, o.Dir)
		}
		b.logger.Info("downloading dictionary %s", lang)
		if err := b.download(ctx, lang, aff, dic); err != nil {
			return nil, err
		}
	}

	af, err := os.Open(aff)
	if err != nil {
		return nil, err
	}
	defer af.Close()
	df, err := os.Open(dic)
	if err != nil {
		return nil, err
	}
	defer df.Close()

	return ParseBundle(lang, af, df, o.MaxErrors)
}

func (b *Backend) download(ctx context.Context, lang, affPath, dicPath string) error {
	o := b.options()
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("create dictionary directory: %w", err)
	}
	base := strings.TrimRight(o.DownloadURL, "/") + "/" + lang + "/"
	if err := b.fetch(ctx, base+"index.aff", affPath); err != nil {
		return fmt.Errorf("download dictionary %s: %w", lang, err)
	}
	if err := b.fetch(ctx, base+"index.dic", dicPath); err != nil {
		_ = os.Remove(affPath)
		return fmt.Errorf("download dictionary %s: %w", lang, err)
	}
	return nil
}

func (b *Backend) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, res.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, res.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist) && err == nil
}
