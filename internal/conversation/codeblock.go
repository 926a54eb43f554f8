package conversation

import (
	"regexp"
	"strings"
)

// fencePattern 匹配 ```lang\n ... ``` 形式的代码块，语言标记可选，换行可以是 \r\n。
// 非贪婪匹配保证相邻代码块彼此独立，没有闭合标记的代码块不会被匹配。
var fencePattern = regexp.MustCompile("(?s)```\\w*\\r?\\n(.*?)```")

// ExtractCodeSnippets 按出现顺序返回所有代码块的内容，首尾空白已去除。
func ExtractCodeSnippets(text string) []string {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	snippets := make([]string, 0, len(matches))
	for _, m := range matches {
		snippets = append(snippets, strings.TrimSpace(m[1]))
	}
	return snippets
}

// StripCodeSnippets 删除所有完整的代码块，返回剩余的说明文字。
func StripCodeSnippets(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}
