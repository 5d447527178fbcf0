package emotion

import "testing"

func TestClassifyDiscomfortIsSad(t *testing.T) {
	if got := Classify("我感觉有点不舒服"); got != Sad {
		t.Fatalf("expected sad, got %s", got)
	}
}

func TestClassifySadWinsOverHappy(t *testing.T) {
	// 同时包含“难过”和“开心”
	if got := Classify("本来很开心，现在有点难过"); got != Sad {
		t.Fatalf("expected sad to take priority, got %s", got)
	}
}

func TestClassifyHappyBeforeConfused(t *testing.T) {
	if got := Classify("好的，怎么开始？"); got != Happy {
		t.Fatalf("expected happy, got %s", got)
	}
}

func TestClassifySunnyWeatherIsHappy(t *testing.T) {
	if got := Classify("今天天气晴朗"); got != Happy {
		t.Fatalf("expected happy, got %s", got)
	}
}

func TestClassifyQuestionIsConfused(t *testing.T) {
	if got := Classify("今天的天气怎么样？"); got != Confused {
		t.Fatalf("expected confused, got %s", got)
	}
}

func TestClassifyFallsBackToNeutral(t *testing.T) {
	for _, text := range []string{"", "   ", "帮我联系我的儿子"} {
		if got := Classify(text); got != Neutral {
			t.Fatalf("Classify(%q) = %s, want neutral", text, got)
		}
	}
}

func TestClassifyIgnoresCase(t *testing.T) {
	if got := Classify("I feel GREAT today"); got != Happy {
		t.Fatalf("expected happy, got %s", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []string{"我感觉有点不舒服", "今天天气晴朗", "不知道", "随便聊聊"}
	for _, text := range inputs {
		first := Classify(text)
		for i := 0; i < 5; i++ {
			if got := Classify(text); got != first {
				t.Fatalf("Classify(%q) changed from %s to %s", text, first, got)
			}
		}
	}
}

func TestNewClassifierCustomRules(t *testing.T) {
	c := NewClassifier([]Rule{{Label: Confused, Keywords: []string{"嗯"}}})
	if got := c.Classify("嗯，好的"); got != Confused {
		t.Fatalf("expected custom rule to win, got %s", got)
	}
	if got := c.Classify("开心"); got != Neutral {
		t.Fatalf("expected default rules to be ignored, got %s", got)
	}
}

func TestNewClassifierCopiesRules(t *testing.T) {
	rules := []Rule{{Label: Happy, Keywords: []string{"耶"}}}
	c := NewClassifier(rules)
	rules[0].Keywords[0] = "不"

	if got := c.Classify("耶"); got != Happy {
		t.Fatalf("classifier should not observe caller mutations, got %s", got)
	}
}

func TestLabelValid(t *testing.T) {
	for _, l := range []Label{Neutral, Happy, Sad, Confused} {
		if !l.Valid() {
			t.Fatalf("expected %s to be valid", l)
		}
	}
	if Label("angry").Valid() {
		t.Fatal("angry is not part of the label set")
	}
}
