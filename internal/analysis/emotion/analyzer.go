package emotion

import "strings"

// Label 表示消息上附带的情绪标签。
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Confused Label = "confused"
)

// Valid 判断标签是否属于固定集合。
func (l Label) Valid() bool {
	switch l {
	case Neutral, Happy, Sad, Confused:
		return true
	default:
		return false
	}
}

// Rule 是一条关键词规则，命中任意关键词即返回 Label。
type Rule struct {
	Label    Label
	Keywords []string
}

// DefaultRules 按优先级排列：难受/伤心 > 开心/认可 > 疑惑。
// 同时命中前两类的文本判定为 Sad，顺序不可调整。
var DefaultRules = []Rule{
	{
		Label: Sad,
		Keywords: []string{
			"不舒服", "难过", "伤心", "难受", "疼", "痛", "孤单", "寂寞", "不好", "想哭",
			"sad", "unwell", "hurt", "lonely",
		},
	},
	{
		Label: Happy,
		Keywords: []string{
			"开心", "高兴", "好", "快乐", "喜欢", "不错", "晴朗", "太棒", "哈哈", "谢谢",
			"happy", "great", "thanks",
		},
	},
	{
		Label: Confused,
		Keywords: []string{
			"不知道", "疑问", "怎么", "为什么", "不明白", "不懂", "什么意思",
			"confused", "how do",
		},
	},
}

// Classifier 用有序规则表为文本打情绪标签。
type Classifier struct {
	rules []Rule
}

// NewClassifier 使用给定规则创建分类器；rules 为空时使用 DefaultRules。
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	copied := make([]Rule, len(rules))
	for i, rule := range rules {
		copied[i] = Rule{Label: rule.Label, Keywords: append([]string(nil), rule.Keywords...)}
	}
	return &Classifier{rules: copied}
}

// Classify 返回第一条命中规则的标签，没有命中时返回 Neutral。
func (c *Classifier) Classify(text string) Label {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Neutral
	}

	for _, rule := range c.rules {
		for _, word := range rule.Keywords {
			if word == "" {
				continue
			}
			if strings.Contains(normalized, strings.ToLower(word)) {
				return rule.Label
			}
		}
	}
	return Neutral
}

var defaultClassifier = NewClassifier(DefaultRules)

// Classify 使用默认规则表分类。
func Classify(text string) Label {
	return defaultClassifier.Classify(text)
}
