package robots

import (
	"bufio"
	"regexp"
	"strings"
)

// Rules is a parsed robots.txt.
type Rules struct {
	Groups []Group
}

// Group is one block of user-agent lines and their directives.
type Group struct {
	Agents []string
	Rules  []Rule
}

// Rule is a single Allow or Disallow line.
type Rule struct {
	Allow   bool
	Pattern string
	re      *regexp.Regexp
}

// Parse reads robots.txt text. Unknown directives and malformed lines are
// ignored; consecutive user-agent lines share one group.
func Parse(text string) Rules {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), maxRobotsBytes)
	var (
		groups  []Group
		cur     *Group
		inRules bool
	)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "user-agent":
			if cur == nil || inRules {
				groups = append(groups, Group{})
				cur = &groups[len(groups)-1]
				inRules = false
			}
			cur.Agents = append(cur.Agents, strings.ToLower(val))
		case "allow", "disallow":
			if cur == nil {
				continue
			}
			inRules = true
			if val == "" {
				continue
			}
			cur.Rules = append(cur.Rules, Rule{Allow: key == "allow", Pattern: val, re: compile(val)})
		}
	}
	return Rules{Groups: groups}
}

// Allows reports whether path (with optional query) may be fetched by
// userAgent. The most specific agent group applies; within it the longest
// matching pattern wins and Allow wins ties.
func (r Rules) Allows(userAgent, path string) bool {
	g := r.group(userAgent)
	if g == nil {
		return true
	}
	best, allow := -1, true
	for _, rule := range g.Rules {
		if !rule.re.MatchString(path) {
			continue
		}
		n := specificity(rule.Pattern)
		if n > best || (n == best && rule.Allow) {
			best, allow = n, rule.Allow
		}
	}
	return allow
}

func (r Rules) group(userAgent string) *Group {
	ua := strings.ToLower(userAgent)
	if i := strings.IndexByte(ua, '/'); i >= 0 {
		ua = ua[:i]
	}
	var best *Group
	bestLen := -1
	for i := range r.Groups {
		for _, a := range r.Groups[i].Agents {
			n := -1
			switch {
			case a == "*":
				n = 0
			case a != "" && strings.Contains(ua, a):
				n = len(a)
			}
			if n > bestLen {
				best, bestLen = &r.Groups[i], n
			}
		}
	}
	return best
}

// compile turns a robots pattern into an anchored regexp. '*' matches any
// run of characters and a trailing '$' anchors the end.
func compile(pattern string) *regexp.Regexp {
	anchored := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*")
	if anchored {
		expr += "$"
	}
	return regexp.MustCompile(expr)
}

func specificity(pattern string) int {
	return len(strings.ReplaceAll(strings.TrimSuffix(pattern, "$"), "*", ""))
}
