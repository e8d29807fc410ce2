// Package drain groups log lines into recurring templates using a fixed-depth
// prefix tree (the Drain algorithm). A Miner is stateful: its cluster set grows
// as lines are assigned, so one Miner serves exactly one ingestion run and must
// be fed lines in order.
package drain

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const ParamString = "<*>"

type Config struct {
	Depth       int     // tree depth counting the root and the length layer
	Similarity  float64 // minimum fraction of equal tokens to join a cluster
	MaxChildren int     // max children per internal node
}

func DefaultConfig() Config {
	return Config{Depth: 4, Similarity: 0.4, MaxChildren: 100}
}

type Cluster struct {
	ID     int      `json:"id"`
	Tokens []string `json:"-"`
	Size   int      `json:"size"`
}

func (c Cluster) Template() string { return strings.Join(c.Tokens, " ") }

type node struct {
	children map[string]*node
	clusters []int
}

func newNode() *node { return &node{children: map[string]*node{}} }

type Miner struct {
	cfg      Config
	maxDepth int
	root     *node
	clusters []*Cluster // clusters[id-1]
}

// Normalized replaces out-of-range fields with their defaults. Two configs
// with the same Normalized value assign the same ids.
func (c Config) Normalized() Config {
	def := DefaultConfig()
	if c.Depth < 3 {
		c.Depth = def.Depth
	}
	if c.Similarity <= 0 || c.Similarity > 1 {
		c.Similarity = def.Similarity
	}
	if c.MaxChildren < 2 {
		c.MaxChildren = def.MaxChildren
	}
	return c
}

func New(cfg Config) *Miner {
	cfg = cfg.Normalized()
	return &Miner{cfg: cfg, maxDepth: cfg.Depth - 2, root: newNode()}
}

// Assign returns the id of the cluster the line belongs to, creating a new
// cluster when no existing template is similar enough. Ids start at 1.
func (m *Miner) Assign(line string) int {
	tokens := strings.Fields(line)
	if c := m.search(tokens); c != nil {
		c.Tokens = mergeTemplate(tokens, c.Tokens)
		c.Size++
		return c.ID
	}
	c := &Cluster{ID: len(m.clusters) + 1, Tokens: tokens, Size: 1}
	m.clusters = append(m.clusters, c)
	m.insert(c)
	return c.ID
}

// Clusters returns a snapshot ordered by size, largest first.
func (m *Miner) Clusters() []Cluster {
	out := make([]Cluster, 0, len(m.clusters))
	for _, c := range m.clusters {
		cp := *c
		cp.Tokens = append([]string(nil), c.Tokens...)
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	return out
}

func (m *Miner) search(tokens []string) *Cluster {
	cur, ok := m.root.children[strconv.Itoa(len(tokens))]
	if !ok {
		return nil
	}
	if len(tokens) == 0 {
		if len(cur.clusters) == 0 {
			return nil
		}
		return m.clusters[cur.clusters[0]-1]
	}
	depth := 1
	for _, tok := range tokens {
		if depth >= m.maxDepth || depth == len(tokens) {
			break
		}
		next, ok := cur.children[tok]
		if !ok {
			next, ok = cur.children[ParamString]
		}
		if !ok {
			return nil
		}
		cur = next
		depth++
	}
	return m.fastMatch(cur.clusters, tokens)
}

func (m *Miner) fastMatch(ids []int, tokens []string) *Cluster {
	var best *Cluster
	maxSim, maxParams := -1.0, -1
	for _, id := range ids {
		c := m.clusters[id-1]
		sim, params := similarity(c.Tokens, tokens)
		if sim > maxSim || (sim == maxSim && params > maxParams) {
			maxSim, maxParams, best = sim, params, c
		}
	}
	if best != nil && maxSim >= m.cfg.Similarity {
		return best
	}
	return nil
}

func (m *Miner) insert(c *Cluster) {
	key := strconv.Itoa(len(c.Tokens))
	cur, ok := m.root.children[key]
	if !ok {
		cur = newNode()
		m.root.children[key] = cur
	}
	if len(c.Tokens) == 0 {
		cur.clusters = append(cur.clusters, c.ID)
		return
	}
	depth := 1
	for _, tok := range c.Tokens {
		if depth >= m.maxDepth || depth >= len(c.Tokens) {
			cur.clusters = append(cur.clusters, c.ID)
			return
		}
		cur = m.child(cur, tok)
		depth++
	}
	cur.clusters = append(cur.clusters, c.ID)
}

// child picks or creates the branch for tok. Tokens carrying digits and
// overflow past MaxChildren share the wildcard branch.
func (m *Miner) child(n *node, tok string) *node {
	if next, ok := n.children[tok]; ok {
		return next
	}
	wild, hasWild := n.children[ParamString]
	switch {
	case hasDigit(tok):
		if !hasWild {
			wild = newNode()
			n.children[ParamString] = wild
		}
		return wild
	case hasWild:
		if len(n.children) < m.cfg.MaxChildren {
			next := newNode()
			n.children[tok] = next
			return next
		}
		return wild
	case len(n.children)+1 < m.cfg.MaxChildren:
		next := newNode()
		n.children[tok] = next
		return next
	default:
		wild = newNode()
		n.children[ParamString] = wild
		return wild
	}
}

// similarity compares a template with a token sequence of the same length.
// Wildcard positions are not counted as equal.
func similarity(template, tokens []string) (float64, int) {
	if len(template) == 0 {
		return 1, 0
	}
	same, params := 0, 0
	for i, t := range template {
		if t == ParamString {
			params++
			continue
		}
		if t == tokens[i] {
			same++
		}
	}
	return float64(same) / float64(len(template)), params
}

func mergeTemplate(tokens, template []string) []string {
	out := make([]string, len(template))
	for i := range template {
		if tokens[i] == template[i] {
			out[i] = template[i]
		} else {
			out[i] = ParamString
		}
	}
	return out
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
