package rewrite

import (
	"strings"
	"testing"
)

func TestOffscreenPriceAdapter(t *testing.T) {
	const src = `<span class="a-price">` +
		`<span class="a-offscreen">$24.99</span>` +
		`<span aria-hidden="true"><span class="a-price-whole">24</span><span class="a-price-fraction">99</span></span>` +
		`</span>`

	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)
	RunAdapters(doc, ctx)

	if ctx.Replaced != 1 {
		t.Fatalf("Replaced: got %d, want 1", ctx.Replaced)
	}
	rendered := render(t, doc)
	// $24.99 at 50,000 → 49,980 sats.
	if !strings.Contains(rendered, "49,980 sats") {
		t.Errorf("annotation missing: %s", rendered)
	}
	if !strings.Contains(rendered, ProcessedAttr) {
		t.Error("container missing processed marker")
	}
}

func TestOffscreenAdapterIdempotent(t *testing.T) {
	const src = `<div><span class="sr-only">$10</span>visible</div>`
	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)

	RunAdapters(doc, ctx)
	first := render(t, doc)
	RunAdapters(doc, ctx)
	if second := render(t, doc); second != first {
		t.Errorf("adapter not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
	if ctx.Replaced != 1 {
		t.Errorf("Replaced: got %d, want 1", ctx.Replaced)
	}
}

func TestSplitPartsPriceAdapter(t *testing.T) {
	const src = `<div class="price">` +
		`<span class="price-symbol">$</span>` +
		`<span class="price-whole">1,299</span>` +
		`<span class="price-fraction">50</span>` +
		`</div>`

	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)
	RunAdapters(doc, ctx)

	if ctx.Replaced != 1 {
		t.Fatalf("Replaced: got %d, want 1", ctx.Replaced)
	}
	// $1,299.50 at 50,000 → 2,599,000 sats → 0.025990 BTC ≥ 0.01 → BTC.
	if rendered := render(t, doc); !strings.Contains(rendered, "0.03 BTC") {
		t.Errorf("annotation missing: %s", rendered)
	}
}

func TestMicrodataPriceAdapter(t *testing.T) {
	const src = `<div itemscope>` +
		`<meta itemprop="priceCurrency" content="USD">` +
		`<span itemprop="price" content="500">$500.00</span>` +
		`</div>`

	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)
	RunAdapters(doc, ctx)

	if ctx.Replaced != 1 {
		t.Fatalf("Replaced: got %d, want 1", ctx.Replaced)
	}
	// $500 at 50,000 → 1,000,000 sats → 0.01 BTC.
	if rendered := render(t, doc); !strings.Contains(rendered, "0.01 BTC") {
		t.Errorf("annotation missing: %s", rendered)
	}
}

func TestMicrodataAdapterSkipsForeignCurrency(t *testing.T) {
	const src = `<div itemscope>` +
		`<meta itemprop="priceCurrency" content="EUR">` +
		`<span itemprop="price" content="500">€500</span>` +
		`</div>`

	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)
	RunAdapters(doc, ctx)
	if ctx.Replaced != 0 {
		t.Errorf("Replaced: got %d, want 0 (EUR offer, USD active)", ctx.Replaced)
	}
}

func TestMicrodataAdapterMetaPrice(t *testing.T) {
	// The common schema.org carrier is a void <meta> element. It cannot
	// hold children, so the annotation must land on the itemscope
	// container and the whole document must still render.
	const src = `<div itemscope>` +
		`<meta itemprop="priceCurrency" content="USD">` +
		`<meta itemprop="price" content="24.99">` +
		`<span>$24.99</span>` +
		`</div>`

	ctx := testContext(t, usdPrefs(), usdRates())
	out, err := HTML(src, ctx)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if ctx.Replaced != 1 {
		t.Errorf("Replaced: got %d, want 1", ctx.Replaced)
	}
	// $24.99 at 50,000 → 49,980 sats.
	if !strings.Contains(out, "49,980 sats") {
		t.Errorf("annotation missing: %s", out)
	}
	if !strings.Contains(out, ProcessedAttr) {
		t.Errorf("container not marked processed: %s", out)
	}
}

func TestMicrodataAdapterMetaIdempotent(t *testing.T) {
	const src = `<div itemscope><meta itemprop="price" content="10"><span>$10</span></div>`
	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)

	RunAdapters(doc, ctx)
	first := render(t, doc)
	RunAdapters(doc, ctx)
	if second := render(t, doc); second != first {
		t.Errorf("adapter not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
	if ctx.Replaced != 1 {
		t.Errorf("Replaced: got %d, want 1", ctx.Replaced)
	}
}

func TestAdapterRunsBeforeGenericWalk(t *testing.T) {
	// The offscreen container is handled by the adapter; the generic walk
	// must then skip its subtree (processed marker) instead of double
	// annotating the hidden span's text.
	const src = `<div><span class="a-offscreen">$24.99</span></div>`
	ctx := testContext(t, usdPrefs(), usdRates())
	doc := parseDoc(t, src)

	if err := Apply(doc, ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ctx.Replaced != 1 {
		t.Errorf("Replaced: got %d, want 1 (adapter precedence)", ctx.Replaced)
	}
	if rendered := render(t, doc); strings.Count(rendered, PriceClass) != 1 {
		t.Errorf("expected exactly one annotation: %s", rendered)
	}
}
