package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var builtinCatalogue []byte

// Category 对概念进行粗粒度分类。
type Category string

const (
	CategoryBasics      Category = "basics"
	CategoryAdvanced    Category = "advanced"
	CategoryDevelopment Category = "development"
	CategoryTools       Category = "tools"
)

// Concept 是概念解释卡片。
type Concept struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	DocLink     string   `yaml:"doc_link" json:"docLink,omitempty"`
	Category    Category `yaml:"category" json:"category"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

// Snippet 是可直接复用的 Move 代码片段。
type Snippet struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Code        string `yaml:"code" json:"code"`
}

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Query(text string) []Concept
}

// Catalogue 保存概念与代码片段，加载后只读。
type Catalogue struct {
	concepts   []Concept
	snippets   []Snippet
	maxResults int
}

type catalogueFile struct {
	Concepts []Concept `yaml:"concepts"`
	Snippets []Snippet `yaml:"snippets"`
}

// Builtin 返回内置目录。
func Builtin(maxResults int) (*Catalogue, error) {
	return parse(builtinCatalogue, maxResults)
}

// Load 从 YAML 文件加载目录，路径为空时退回内置目录。
func Load(path string, maxResults int) (*Catalogue, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin(maxResults)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	return parse(content, maxResults)
}

func parse(content []byte, maxResults int) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	for i := range file.Snippets {
		file.Snippets[i].Code = strings.TrimRight(file.Snippets[i].Code, "\n")
	}
	return &Catalogue{concepts: file.Concepts, snippets: file.Snippets, maxResults: maxResults}, nil
}

// Concepts 返回全部概念，category 非空时按分类过滤。
func (c *Catalogue) Concepts(category Category) []Concept {
	if c == nil {
		return nil
	}
	out := make([]Concept, 0, len(c.concepts))
	for _, concept := range c.concepts {
		if category != "" && concept.Category != category {
			continue
		}
		out = append(out, concept)
	}
	return out
}

// Search 按标题、描述与关键字做不区分大小写的子串匹配。
func (c *Catalogue) Search(term string) []Concept {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return c.Concepts("")
	}
	var out []Concept
	for _, concept := range c.concepts {
		if strings.Contains(strings.ToLower(concept.Title), term) ||
			strings.Contains(strings.ToLower(concept.Description), term) {
			out = append(out, concept)
			continue
		}
		for _, keyword := range concept.Keywords {
			if strings.Contains(strings.ToLower(keyword), term) {
				out = append(out, concept)
				break
			}
		}
	}
	return out
}

// Concept 根据 ID 查找概念。
func (c *Catalogue) Concept(id string) (Concept, bool) {
	if c == nil {
		return Concept{}, false
	}
	for _, concept := range c.concepts {
		if concept.ID == id {
			return concept, true
		}
	}
	return Concept{}, false
}

// Snippets 返回全部代码片段。
func (c *Catalogue) Snippets() []Snippet {
	if c == nil {
		return nil
	}
	return append([]Snippet(nil), c.snippets...)
}

// Query 返回关键字出现在提问中的概念，最多 maxResults 条，用于补充大模型上下文。
func (c *Catalogue) Query(text string) []Concept {
	if c == nil {
		return nil
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	results := make([]Concept, 0, c.maxResults)
	for _, concept := range c.concepts {
		if !matches(concept, text) {
			continue
		}
		results = append(results, concept)
		if len(results) >= c.maxResults {
			break
		}
	}
	return results
}

func matches(concept Concept, text string) bool {
	if strings.Contains(text, strings.ToLower(concept.Title)) {
		return true
	}
	for _, keyword := range concept.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized != "" && strings.Contains(text, normalized) {
			return true
		}
	}
	return false
}

var _ Provider = (*Catalogue)(nil)
