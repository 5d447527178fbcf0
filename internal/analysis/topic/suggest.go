package topic

import "strings"

// DefaultTopics 是会话开始时展示的推荐话题。
var DefaultTopics = []string{
	"今天的天气怎么样？",
	"我感觉有点不舒服",
	"帮我联系我的儿子",
	"我想听一首歌",
}

// Rule 把一组关键词映射到一组固定的后续话题。
type Rule struct {
	Name     string
	Keywords []string
	Topics   []string
}

// DefaultRules 按优先级排列，第一条命中的规则生效。
var DefaultRules = []Rule{
	{
		Name:     "weather",
		Keywords: []string{"天气"},
		Topics:   []string{"您喜欢什么样的天气？", "今天想出门散步吗？", "需要我查看明天的天气预报吗？"},
	},
	{
		Name:     "discomfort",
		Keywords: []string{"不舒服", "难受", "疼"},
		Topics:   []string{"您哪里不舒服？", "需要我帮您预约医生吗？", "您最近有按时吃药吗？"},
	},
	{
		Name:     "family",
		Keywords: []string{"儿子", "女儿", "家人"},
		Topics:   []string{"您想给他打电话吗？", "您想发送消息给他吗？", "您上次和家人联系是什么时候？"},
	},
	{
		Name:     "entertainment",
		Keywords: []string{"歌", "音乐", "笑话"},
		Topics:   []string{"您想听什么类型的歌曲？", "需要我给您讲个笑话吗？", "要不要听听今天的新闻？"},
	},
	{
		Name:     "medication",
		Keywords: []string{"提醒", "吃药"},
		Topics:   []string{"需要我帮您设置吃药提醒吗？", "您想在几点提醒？"},
	},
}

// Engine 根据用户最近一条消息给出推荐话题。
type Engine struct {
	rules    []Rule
	defaults []string
}

// NewEngine creates an engine; nil rules or defaults fall back to the built-in tables.
func NewEngine(rules []Rule, defaults []string) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if len(defaults) == 0 {
		defaults = DefaultTopics
	}
	return &Engine{rules: rules, defaults: defaults}
}

// Suggest returns a fresh slice; only lastUserText is considered.
func (e *Engine) Suggest(lastUserText string) []string {
	if rule, ok := e.match(lastUserText); ok {
		return append([]string(nil), rule.Topics...)
	}
	return e.Defaults()
}

// Defaults returns a copy of the default topic set.
func (e *Engine) Defaults() []string {
	return append([]string(nil), e.defaults...)
}

// Category reports which rule Suggest would apply, or "" for the default set.
func (e *Engine) Category(lastUserText string) string {
	if rule, ok := e.match(lastUserText); ok {
		return rule.Name
	}
	return ""
}

func (e *Engine) match(text string) (Rule, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Rule{}, false
	}
	for _, rule := range e.rules {
		if matches(text, rule.Keywords) {
			return rule, true
		}
	}
	return Rule{}, false
}

func matches(text string, keywords []string) bool {
	for _, word := range keywords {
		if word != "" && strings.Contains(text, word) {
			return true
		}
	}
	return false
}

var defaultEngine = NewEngine(nil, nil)

// Suggest uses the built-in rule table.
func Suggest(lastUserText string) []string {
	return defaultEngine.Suggest(lastUserText)
}
