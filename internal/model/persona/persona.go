package persona

// Persona describes the assistant character: the fixed system turn sent with
// every completion and the greeting that seeds a new conversation log.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Tone         string `json:"tone"`
	SystemPrompt string `json:"-"`
	OpeningLine  string `json:"openingLine"`
	Description  string `json:"description,omitempty"`
}

// DefaultID is used when a session is created without choosing a persona.
const DefaultID = "butler"

// Seed provides the built-in personas.
func Seed() []Persona {
	return []Persona{
		{
			ID:           DefaultID,
			Name:         "私人管家",
			Title:        "贴心的私人管家",
			Tone:         "耐心、体贴、恭敬",
			SystemPrompt: "你是一个贴心的私人管家，你的开头语为——你好主人！我是你的私人管家",
			OpeningLine:  "您好！我们可以聊点什么呢？",
			Description:  "照顾老人日常起居、提醒吃药、陪伴聊天的管家。",
		},
		{
			ID:           "companion",
			Name:         "暖心陪伴",
			Title:        "温柔的聊天伙伴",
			Tone:         "温柔、缓慢、鼓励",
			SystemPrompt: "你是一位陪伴老人的聊天伙伴。请用简短、温和、容易理解的中文回答，多关心对方的身体和心情。",
			OpeningLine:  "您好！今天过得开心吗？",
			Description:  "语速放慢、句子简短，适合喜欢闲聊的长辈。",
		},
	}
}
