package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/payment"
)

var _ = Describe("ParsePostback", func() {
	It("parses a JSON object and flattens nested keys", func() {
		// When
		result := payment.ParsePostback([]byte(`{"FullResponse":"YAPPROVED","XactID":"T1","Postback":{"OrderID":"ORD-1","RestrictKey":"k"}}`))

		// Then
		Expect(result.Format).To(Equal(payment.FormatJSON))
		Expect(result.Fields).To(HaveKeyWithValue("FullResponse", "YAPPROVED"))
		Expect(result.Fields).To(HaveKeyWithValue("Postback.OrderID", "ORD-1"))
		Expect(result.Fields).To(HaveKeyWithValue("Postback.RestrictKey", "k"))
	})

	It("keeps dotted JSON keys as they are", func() {
		result := payment.ParsePostback([]byte(`{"Postback.OrderID":"ORD-1","XactID":12345,"Approved":true,"Note":null}`))

		Expect(result.Format).To(Equal(payment.FormatJSON))
		Expect(result.Fields).To(HaveKeyWithValue("Postback.OrderID", "ORD-1"))
		Expect(result.Fields).To(HaveKeyWithValue("XactID", "12345"))
		Expect(result.Fields).To(HaveKeyWithValue("Approved", "true"))
		Expect(result.Fields).To(HaveKeyWithValue("Note", ""))
	})

	It("parses semicolon-delimited pairs and trims whitespace", func() {
		result := payment.ParsePostback([]byte(" FullResponse=NDECLINED ; XactID = T2;Postback.OrderID=ORD-2;\n"))

		Expect(result.Format).To(Equal(payment.FormatDelimited))
		Expect(result.Fields).To(Equal(payment.Fields{
			"FullResponse":     "NDECLINED",
			"XactID":           "T2",
			"Postback.OrderID": "ORD-2",
		}))
	})

	It("falls back to commas when there is no semicolon", func() {
		result := payment.ParsePostback([]byte("FullResponse=YAPPROVED,XactID=T1,OrderID=ORD-1"))

		Expect(result.Format).To(Equal(payment.FormatDelimited))
		Expect(result.Fields).To(HaveKeyWithValue("OrderID", "ORD-1"))
		Expect(result.Fields).To(HaveLen(3))
	})

	It("probes semicolons first so commas stay inside values", func() {
		result := payment.ParsePostback([]byte("Response=YAPPROVED, thank you;XactID=T1"))

		Expect(result.Fields).To(HaveKeyWithValue("Response", "YAPPROVED, thank you"))
	})

	It("splits on the first equals sign only", func() {
		result := payment.ParsePostback([]byte("Response=Ya=b;XactID=T1"))

		Expect(result.Fields).To(HaveKeyWithValue("Response", "Ya=b"))
	})

	It("yields the same fields for equivalent JSON and delimited bodies", func() {
		jsonResult := payment.ParsePostback([]byte(`{"FullResponse":"YAPPROVED","XactID":"T1","Postback":{"OrderID":"ORD-1"}}`))
		delimited := payment.ParsePostback([]byte("FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1"))

		Expect(jsonResult.Fields).To(Equal(delimited.Fields))
	})

	DescribeTable("rejects bodies in neither format",
		func(body string) {
			result := payment.ParsePostback([]byte(body))
			Expect(result.Format).To(Equal(payment.FormatUnrecognized))
			Expect(result.Recognized()).To(BeFalse())
			Expect(result.Fields).To(BeNil())
		},
		Entry("empty", ""),
		Entry("whitespace", "   \n"),
		Entry("plain text", "hello world"),
		Entry("broken JSON without pairs", `{"FullResponse":`),
		Entry("JSON array", `["a","b"]`),
		Entry("only separators", ";;;"),
		Entry("keys without values", "=x;=y"),
	)
})

var _ = Describe("DecodeOutcome", func() {
	DescribeTable("maps the primary code character to a status",
		func(primary, secondary, status, message string) {
			outcome := payment.DecodeOutcome(primary, secondary)
			Expect(outcome.Status).To(Equal(status))
			Expect(outcome.Message).To(Equal(message))
		},
		Entry("approved", "YAPPROVED", "", order.StatusPaid, "APPROVED"),
		Entry("declined", "NDECLINED", "", order.StatusFailed, "DECLINED"),
		Entry("approved with padding", "  Y APPROVED  ", "", order.StatusPaid, "APPROVED"),
		Entry("ambiguous leading character stays pending", "PREVIEW", "", order.StatusPending, "PREVIEW"),
		Entry("lowercase is not a code", "yes", "", order.StatusPending, "yes"),
		Entry("empty primary stays pending", "", "", order.StatusPending, ""),
		Entry("code only takes the secondary message", "Y", "YAPPROVED 123456", order.StatusPaid, "APPROVED 123456"),
		Entry("empty primary still reads the secondary message", "", "NCALL CENTER", order.StatusPending, "CALL CENTER"),
		Entry("secondary never decides the status", "", "YAPPROVED", order.StatusPending, "APPROVED"),
		Entry("primary message wins over secondary", "NDECLINED", "NOTHER", order.StatusFailed, "DECLINED"),
	)
})
