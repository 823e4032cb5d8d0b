// Command cookiedump lists cookies either from a saved session file or from
// the local browser cookie stores, to check what a login run harvested or
// what -cookies-from-browser would seed.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"social-login/internal/cookies"
)

// Row is one cookie as printed; JSON output uses the same shape.
type Row struct {
	Source    string `json:"source"` // browser family or "session/<provider>"
	Profile   string `json:"profile,omitempty"`
	StoreFile string `json:"store_file"`
	Domain    string `json:"domain"`
	HostOnly  bool   `json:"host_only"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	ValueHex  string `json:"value_hex,omitempty"`
	Secure    bool   `json:"secure"`
	HttpOnly  bool   `json:"http_only"`
	SameSite  string `json:"same_site,omitempty"`
	Expires   string `json:"expires"` // RFC3339 or "session"

	dedupeKey string
	binary    bool
}

type options struct {
	full   bool
	hex    bool
	dedupe bool
}

func main() {
	session := flag.String("session", "", "read a session file written by social-login instead of the browser stores")
	browser := flag.String("browser", "", "limit browser stores to one family or profile (chrome, firefox:/path/to/profile)")
	match := flag.String("match", "google,asana", "comma-separated substrings to match in cookie domain (case-insensitive)")
	jsonOut := flag.Bool("json", false, "output JSON instead of a table")
	var opts options
	flag.BoolVar(&opts.full, "full", false, "print full cookie values (default truncates to 48 chars)")
	flag.BoolVar(&opts.hex, "hex", false, "always include the hex dump of values (default: only for non-ASCII values)")
	flag.BoolVar(&opts.dedupe, "dedupe", false, "show each domain/path/name once, even if several profiles hold it")
	flag.Parse()

	subs := splitList(*match)
	if len(subs) == 0 {
		fmt.Fprintln(os.Stderr, "-match needs at least one substring")
		os.Exit(2)
	}
	keep := func(domain string) bool {
		d := strings.ToLower(domain)
		for _, s := range subs {
			if strings.Contains(d, s) {
				return true
			}
		}
		return false
	}

	var (
		rows   []Row
		stores = 1
		err    error
	)
	if *session != "" {
		rows, err = sessionRows(*session, keep, opts)
	} else {
		rows, stores, err = storeRows(*browser, keep, opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "cookiedump:", err)
		os.Exit(1)
	}
	if opts.dedupe {
		rows = dedupe(rows)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Source+a.StoreFile < b.Source+b.StoreFile
	})

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"generated": time.Now().UTC().Format(time.RFC3339),
			"platform":  runtime.GOOS + "/" + runtime.GOARCH,
			"match":     subs,
			"stores":    stores,
			"count":     len(rows),
			"rows":      rows,
		})
		return
	}
	printTable(os.Stdout, rows, stores, opts)
}

func sessionRows(path string, keep func(string) bool, opts options) ([]Row, error) {
	d, err := cookies.ReadDump(path)
	if err != nil {
		return nil, err
	}
	source := "session"
	if d.Provider != "" {
		source += "/" + d.Provider
	}
	var rows []Row
	for _, c := range cookies.ToHTTP(d.Cookies) {
		if keep(c.Domain) {
			rows = append(rows, toRow(source, "", path, c, opts))
		}
	}
	return rows, nil
}

func storeRows(browser string, keep func(string) bool, opts options) ([]Row, int, error) {
	found, stores, err := cookies.ReadStores(browser, keep)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]Row, 0, len(found))
	for _, sc := range found {
		rows = append(rows, toRow(sc.Browser, sc.Profile, sc.File, sc.Cookie, opts))
	}
	return rows, stores, nil
}

func toRow(source, profile, file string, c *http.Cookie, opts options) Row {
	r := Row{
		Source:    source,
		Profile:   profile,
		StoreFile: file,
		Domain:    c.Domain,
		// Host-only cookies are stored without a leading dot.
		HostOnly:  c.Domain != "" && !strings.HasPrefix(c.Domain, "."),
		Path:      c.Path,
		Name:      c.Name,
		Value:     c.Value,
		Secure:    c.Secure,
		HttpOnly:  c.HttpOnly,
		SameSite:  cookies.SameSiteString(c.SameSite),
		Expires:   "session",
		dedupeKey: cookies.DedupeKey(c),
		binary:    !isPrintableASCII(c.Value),
	}
	if !c.Expires.IsZero() {
		r.Expires = c.Expires.UTC().Format(time.RFC3339)
		if time.Now().After(c.Expires) {
			r.Expires += " (expired)"
		}
	}
	if opts.hex || r.binary {
		r.ValueHex = hex.EncodeToString([]byte(c.Value))
	}
	if !opts.full && utf8.RuneCountInString(r.Value) > 48 {
		r.Value = string([]rune(r.Value)[:48]) + "…"
	}
	return r
}

// dedupe keeps the first row of each domain/path/name and records how many
// stores held it in Source.
func dedupe(rows []Row) []Row {
	idx := map[string]int{}
	held := map[string]int{}
	var out []Row
	for _, r := range rows {
		held[r.dedupeKey]++
		if _, ok := idx[r.dedupeKey]; ok {
			continue
		}
		idx[r.dedupeKey] = len(out)
		out = append(out, r)
	}
	for k, i := range idx {
		if n := held[k]; n > 1 {
			out[i].Source = fmt.Sprintf("%s (+%d)", out[i].Source, n-1)
		}
	}
	return out
}

func printTable(w io.Writer, rows []Row, stores int, opts options) {
	fmt.Fprintf(w, "%d matching cookies from %d stores\n\n", len(rows), stores)
	if len(rows) == 0 {
		fmt.Fprintln(w, "Widen -match, or check that the login run reached the post-login page.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tDOMAIN\tPATH\tNAME\tFLAGS\tEXPIRES\tVALUE")
	for _, r := range rows {
		value := r.Value
		if r.ValueHex != "" && (opts.hex || r.binary) {
			value = "hex:" + r.ValueHex
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Source, r.Domain, r.Path, r.Name, flags(r), r.Expires, value)
	}
	_ = tw.Flush()
}

func flags(r Row) string {
	var f []string
	if r.Secure {
		f = append(f, "secure")
	}
	if r.HttpOnly {
		f = append(f, "httponly")
	}
	if r.HostOnly {
		f = append(f, "hostonly")
	}
	if r.SameSite != "" {
		f = append(f, "samesite="+strings.ToLower(r.SameSite))
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
