package recovery_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fjglira/qagen/internal/recovery"
)

func numbers(res recovery.Result) []int {
	var out []int
	for _, r := range res.Records {
		if r.No == nil {
			out = append(out, -1)
			continue
		}
		out = append(out, *r.No)
	}
	return out
}

var _ = Describe("StripFences", func() {
	It("removes json fences and keeps the body", func() {
		Expect(recovery.StripFences("```json\n{\"a\":1}\n```")).To(Equal(`{"a":1}`))
	})
})

var _ = Describe("ParseDirect", func() {
	It("parses a complete envelope", func() {
		text := "```json\n" + `{"testCases":[{"no":1,"title":"Login","steps":"1. Open"}],"questions":["Max length?"],"summary":"ok","hasMore":true}` + "\n```"
		res, ok := recovery.ParseDirect(text)
		Expect(ok).To(BeTrue())
		Expect(numbers(res)).To(Equal([]int{1}))
		Expect(res.Records[0].Get("Title")).To(Equal("Login"))
		Expect(res.Questions).To(Equal([]string{"Max length?"}))
		Expect(res.Summary).To(Equal("ok"))
		Expect(res.HasMore).To(BeTrue())
	})

	It("accepts a bare array of records", func() {
		res, ok := recovery.ParseDirect(`[{"no":1,"title":"A"},{"no":"2","title":"B"}]`)
		Expect(ok).To(BeTrue())
		Expect(numbers(res)).To(Equal([]int{1, 2}))
	})

	It("matches keys case-insensitively", func() {
		res, ok := recovery.ParseDirect(`{"TestCases":[{"No":3,"Title":"X","ExpectedResult":"shown"}]}`)
		Expect(ok).To(BeTrue())
		Expect(numbers(res)).To(Equal([]int{3}))
		Expect(res.Records[0].Get(recovery.FieldExpectedResult)).To(Equal("shown"))
	})

	It("joins array steps with newlines", func() {
		res, ok := recovery.ParseDirect(`{"testCases":[{"no":1,"title":"A","steps":["1. Open","2. Tap"]}]}`)
		Expect(ok).To(BeTrue())
		Expect(res.Records[0].Get(recovery.FieldSteps)).To(Equal("1. Open\n2. Tap"))
	})

	It("rejects truncated output", func() {
		_, ok := recovery.ParseDirect(`{"testCases":[{"no":1,"title":"A"}`)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Recover", func() {
	It("keeps only the complete record of a truncated response", func() {
		res := recovery.Recover(`{"testCases":[{"no":1,"title":"A"},{"no":2,"title":"B"`)
		Expect(numbers(res)).To(Equal([]int{1}))
		Expect(res.Records[0].Get(recovery.FieldTitle)).To(Equal("A"))
	})

	It("finds an envelope surrounded by prose", func() {
		text := `Here you go: {"testCases":[{"no":1,"title":"A"},{"no":2,"title":"B"}],"questions":["Q1"],"summary":"two"} Hope it helps.`
		res := recovery.Recover(text)
		Expect(numbers(res)).To(Equal([]int{1, 2}))
		Expect(res.Questions).To(Equal([]string{"Q1"}))
		Expect(res.Summary).To(Equal("two"))
	})

	It("drops envelope elements without a no field", func() {
		res := recovery.Recover(`{"testcases":[{"title":"no number"},{"no":4,"title":"D"}]} trailing`)
		Expect(numbers(res)).To(Equal([]int{4}))
	})

	It("ignores braces and escaped quotes inside strings", func() {
		text := `{"no":1,"title":"Shows {name} and \"quoted }\" text","steps":"1. Open"} {"no":2,"title":"B"`
		res := recovery.Recover(text)
		Expect(numbers(res)).To(Equal([]int{1}))
		Expect(res.Records[0].Get(recovery.FieldTitle)).To(Equal(`Shows {name} and "quoted }" text`))
	})

	It("collects concatenated fragments", func() {
		res := recovery.Recover(`{"no":1,"title":"A"}` + "\n" + `{"no":2,"steps":"1. Do"}` + "\n" + `{"other":true}`)
		Expect(numbers(res)).To(Equal([]int{1, 2}))
	})

	It("only returns records that are substrings of the input", func() {
		text := `noise {"no":7,"title":"Seven","steps":"1. Go"} more {"bad": [} {"no":8,"title":"Eight"}`
		res := recovery.Recover(text)
		Expect(numbers(res)).To(Equal([]int{7, 8}))
		for _, r := range res.Records {
			Expect(text).To(ContainSubstring(fmt.Sprintf(`"no":%d`, *r.No)))
			Expect(text).To(ContainSubstring(r.Get(recovery.FieldTitle)))
		}
	})

	Context("when no balanced object parses", func() {
		It("falls back to field extraction", func() {
			text := `{"testCases":[{"no": 5, "title": "Keeps \"quotes\"", "steps": "1. Open\n2. Tap"}, {"no": 6, "title": "Cut`
			res := recovery.Recover(strings.Replace(text, `"}, {`, `", "x": [}, {`, 1))
			Expect(numbers(res)).To(Equal([]int{5}))
			Expect(res.Records[0].Get(recovery.FieldTitle)).To(Equal(`Keeps "quotes"`))
			Expect(res.Records[0].Get(recovery.FieldSteps)).To(Equal("1. Open\n2. Tap"))
		})

		It("skips chunks without a title or steps", func() {
			res := recovery.Recover(`[{"no": 1, "depth1": "Login", "x": ]}, {"no": 2, "title": "Real", "y": ]}`)
			Expect(numbers(res)).To(Equal([]int{2}))
		})
	})

	It("returns nothing for empty or brace-free text", func() {
		Expect(recovery.Recover("").Records).To(BeEmpty())
		Expect(recovery.Recover("the model refused").Records).To(BeEmpty())
	})

	It("terminates on pathological input", func() {
		res := recovery.Recover(strings.Repeat("{", 12000))
		Expect(res.Records).To(BeEmpty())
	})
})
