package relay

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	// ErrValidation 输入校验失败
	ErrValidation = errors.New("validation failed")
	// ErrEmptyMessage 消息为空
	ErrEmptyMessage = fmt.Errorf("%w: message cannot be empty", ErrValidation)
	// ErrMessageTooLong 消息超过字数上限
	ErrMessageTooLong = fmt.Errorf("%w: message exceeds word limit", ErrValidation)
)

// Validate 校验用户输入
func Validate(rawText string, maxWords int) error {
	if strings.TrimSpace(rawText) == "" {
		return ErrEmptyMessage
	}
	if n := len(strings.Fields(rawText)); n > maxWords {
		return fmt.Errorf("%w (%d > %d)", ErrMessageTooLong, n, maxWords)
	}
	return nil
}

// DeriveTitle 取前 n 个单词作为标题，超出时追加 "..."
func DeriveTitle(rawText string, n int) string {
	words := strings.Fields(rawText)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}

var md = goldmark.New()

// inlineSentinel 让分片以段落开头，避免行中出现的 "2. "、"- "、"> " 被当作块标记
const inlineSentinel = "x "

// StripMarkdown 将一段 Markdown 转为纯文本
// 分片首尾的空白原样保留，否则拼接后单词会粘连
// lineStart 表示已累计的回复停在行首，只有此时分片开头才可能是块级标记
func StripMarkdown(chunk string, lineStart bool) string {
	core := strings.TrimSpace(chunk)
	if core == "" {
		return chunk
	}
	lead := chunk[:len(chunk)-len(strings.TrimLeftFunc(chunk, unicode.IsSpace))]
	trail := chunk[len(strings.TrimRightFunc(chunk, unicode.IsSpace)):]

	var plain string
	if lineStart || strings.Contains(lead, "\n") {
		plain = collectText([]byte(core))
	} else {
		plain = collectText([]byte(inlineSentinel + core))
		plain = strings.TrimPrefix(plain, inlineSentinel)
	}
	plain = stripStrayStrong(strings.Trim(plain, "\n"))
	if plain == "" {
		return ""
	}
	return lead + plain + trail
}

// AtLineStart 判断累计的回复是否停在行首
func AtLineStart(reply string) bool {
	return reply == "" || strings.HasSuffix(reply, "\n")
}

// stripStrayStrong 去掉被分片切开、解析器无法配对的 "**"
// 两侧都是空白或都贴着字符的 "**" 保留，如 "2 ** 3"、"2**3"
func stripStrayStrong(s string) string {
	if !strings.Contains(s, "**") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if !strings.HasPrefix(s[i:], "**") {
			b.WriteByte(s[i])
			i++
			continue
		}
		before := i == 0 || isSpaceByte(s[i-1])
		after := i+2 == len(s) || isSpaceByte(s[i+2]) || unicode.IsPunct(rune(s[i+2]))
		opening := before && !after
		closing := !before && after
		if !opening && !closing {
			b.WriteString("**")
		}
		i += 2
	}
	return b.String()
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func collectText(source []byte) string {
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && n.PreviousSibling() != nil && buf.Len() > 0 {
			buf.WriteByte('\n')
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			// 行内的 <T>、<String> 多半是泛型参数，原样保留
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			if hb, ok := node.(*ast.HTMLBlock); ok && hb.HasClosure() {
				buf.Write(hb.ClosureLine.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
