package resolver

import (
	"reflect"
	"testing"
)

func TestCompileLifecycleRules_FixedShape(t *testing.T) {
	rules := CompileLifecycleRules(3)

	if len(rules) != 4 {
		t.Fatalf("Expected exactly 4 rules, got %d", len(rules))
	}
	for i, rule := range rules {
		if rule.Priority != i+1 {
			t.Errorf("Rule %d: expected priority %d, got %d", i, i+1, rule.Priority)
		}
	}
}

func TestCompileLifecycleRules_LatestTagRule(t *testing.T) {
	rules := CompileLifecycleRules(5)

	latest := rules[0]
	if latest.Selector.Status != TagStatusTagged {
		t.Errorf("Expected tagged selector, got %q", latest.Selector.Status)
	}
	if !reflect.DeepEqual(latest.Selector.TagPrefixes, []string{"latest"}) {
		t.Errorf("Expected latest prefix, got %v", latest.Selector.TagPrefixes)
	}
	if latest.Retention.CountType != CountTypeImageCountMoreThan {
		t.Errorf("Expected count-based retention, got %q", latest.Retention.CountType)
	}
	if latest.Retention.Count != 5 {
		t.Errorf("Expected count 5, got %d", latest.Retention.Count)
	}
}

func TestCompileLifecycleRules_CommitTagPartition(t *testing.T) {
	rules := CompileLifecycleRules(3)

	digits := rules[1]
	letters := rules[2]

	// The two age rules together cover every leading hex character.
	covered := make(map[string]bool)
	for _, p := range digits.Selector.TagPrefixes {
		covered[p] = true
	}
	for _, p := range letters.Selector.TagPrefixes {
		if covered[p] {
			t.Errorf("Prefix %q selected by both commit-tag rules", p)
		}
		covered[p] = true
	}
	for _, c := range "0123456789abcdef" {
		if !covered[string(c)] {
			t.Errorf("Leading character %q not covered by any commit-tag rule", string(c))
		}
	}

	for _, rule := range []LifecycleRule{digits, letters} {
		if rule.Retention.CountType != CountTypeSinceImagePushed {
			t.Errorf("Rule %d: expected age-based retention, got %q",
				rule.Priority, rule.Retention.CountType)
		}
		if rule.Retention.Count != 90 {
			t.Errorf("Rule %d: expected 90-day window, got %d", rule.Priority, rule.Retention.Count)
		}
	}
}

func TestCompileLifecycleRules_UntaggedRule(t *testing.T) {
	rules := CompileLifecycleRules(7)

	untagged := rules[3]
	if untagged.Selector.Status != TagStatusUntagged {
		t.Errorf("Expected untagged selector, got %q", untagged.Selector.Status)
	}
	if len(untagged.Selector.TagPrefixes) != 0 {
		t.Errorf("Untagged rule must not select prefixes, got %v", untagged.Selector.TagPrefixes)
	}
	if untagged.Retention.Count != 7 {
		t.Errorf("Expected count 7, got %d", untagged.Retention.Count)
	}
}

func TestCompileLifecycleRules_Deterministic(t *testing.T) {
	a := CompileLifecycleRules(3)
	b := CompileLifecycleRules(3)

	if !reflect.DeepEqual(a, b) {
		t.Error("Same keep count produced different rule sets")
	}
}
