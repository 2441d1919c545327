package signal

import (
	"strings"
	"testing"
	"time"

	"github.com/sharecast/relay/internal/config"
)

func testLimits() config.RateLimits {
	return config.RateLimits{
		Chat:      config.BucketLimits{Limit: 5, Window: time.Minute, BurstLimit: 3, BurstWindow: time.Second},
		Signaling: config.BucketLimits{Limit: 10, Window: time.Minute, BurstLimit: 10, BurstWindow: time.Second},
		Default:   config.BucketLimits{Limit: 4, Window: time.Minute, BurstLimit: 4, BurstWindow: time.Second},
	}
}

func TestSlidingWindowRejectsOverLimit(t *testing.T) {
	g := NewGovernor(testLimits())
	base := time.Now()

	// 10 admits spread over the signaling window, 200ms apart.
	for i := 0; i < 10; i++ {
		ok, _ := g.admitAt("c1", BucketSignaling, base.Add(time.Duration(i)*200*time.Millisecond))
		if !ok {
			t.Fatalf("message %d rejected inside the limit", i+1)
		}
	}
	ok, reason := g.admitAt("c1", BucketSignaling, base.Add(2100*time.Millisecond))
	if ok {
		t.Fatal("11th message admitted past the window limit")
	}
	if !strings.Contains(reason, "Rate limit exceeded") {
		t.Fatalf("unexpected reason %q", reason)
	}

	// Once the earliest stamps age out the window frees up again.
	ok, _ = g.admitAt("c1", BucketSignaling, base.Add(time.Minute+time.Millisecond))
	if !ok {
		t.Fatal("message rejected after the window slid past the old stamps")
	}
}

func TestBurstWindowRejectsAndResets(t *testing.T) {
	g := NewGovernor(testLimits())
	base := time.Now()

	for i := 0; i < 3; i++ {
		if ok, _ := g.admitAt("c1", BucketChat, base); !ok {
			t.Fatalf("burst message %d rejected", i+1)
		}
	}
	ok, reason := g.admitAt("c1", BucketChat, base.Add(100*time.Millisecond))
	if ok {
		t.Fatal("4th message in the same second admitted past the burst limit")
	}
	if !strings.Contains(reason, "Too many messages") {
		t.Fatalf("unexpected reason %q", reason)
	}

	// A fresh burst window admits again while the sliding window has room.
	ok, _ = g.admitAt("c1", BucketChat, base.Add(1100*time.Millisecond))
	if !ok {
		t.Fatal("message rejected after burst window rolled over")
	}
}

func TestRejectedMessagesDoNotConsumeCapacity(t *testing.T) {
	g := NewGovernor(testLimits())
	base := time.Now()

	for i := 0; i < 3; i++ {
		g.admitAt("c1", BucketChat, base)
	}
	// Hammer the closed burst window; none of these may count.
	for i := 0; i < 20; i++ {
		if ok, _ := g.admitAt("c1", BucketChat, base.Add(500*time.Millisecond)); ok {
			t.Fatal("admitted during a closed burst window")
		}
	}
	// Sliding window should hold 3, not 23: two more fit under Limit 5.
	for i := 0; i < 2; i++ {
		if ok, _ := g.admitAt("c1", BucketChat, base.Add(time.Duration(2+i)*time.Second)); !ok {
			t.Fatalf("message %d rejected; rejected admits leaked into the window", i+1)
		}
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	g := NewGovernor(testLimits())
	base := time.Now()

	for i := 0; i < 3; i++ {
		g.admitAt("c1", BucketChat, base)
	}
	if ok, _ := g.admitAt("c1", BucketChat, base); ok {
		t.Fatal("chat bucket should be exhausted")
	}
	if ok, _ := g.admitAt("c1", BucketSignaling, base); !ok {
		t.Fatal("signaling bucket throttled by chat traffic")
	}
	if ok, _ := g.admitAt("c1", BucketDefault, base); !ok {
		t.Fatal("default bucket throttled by chat traffic")
	}
}

func TestConnectionsAreIndependent(t *testing.T) {
	g := NewGovernor(testLimits())
	base := time.Now()

	for i := 0; i < 3; i++ {
		g.admitAt("c1", BucketChat, base)
	}
	if ok, _ := g.admitAt("c2", BucketChat, base); !ok {
		t.Fatal("second connection throttled by the first")
	}
}

func TestForgetClearsCounters(t *testing.T) {
	g := NewGovernor(testLimits())
	base := time.Now()

	for i := 0; i < 3; i++ {
		g.admitAt("c1", BucketChat, base)
	}
	g.Forget("c1")
	if ok, _ := g.admitAt("c1", BucketChat, base); !ok {
		t.Fatal("counters survived Forget")
	}
}

func TestBucketForClassification(t *testing.T) {
	cases := []struct {
		msgType  string
		bucket   Bucket
		governed bool
	}{
		{TypeChat, BucketChat, true},
		{TypeOffer, BucketSignaling, true},
		{TypeAnswer, BucketSignaling, true},
		{TypeICECandidate, BucketSignaling, true},
		{TypeContentUpdate, BucketDefault, true},
		{TypeCursorUpdate, BucketDefault, true},
		{TypePing, BucketDefault, false},
		{TypeScreenShareStarted, BucketDefault, false},
		{TypeEndRoom, BucketDefault, false},
	}
	for _, tc := range cases {
		bucket, governed := BucketFor(tc.msgType)
		if governed != tc.governed {
			t.Fatalf("%s: governed = %v, want %v", tc.msgType, governed, tc.governed)
		}
		if governed && bucket != tc.bucket {
			t.Fatalf("%s: bucket = %s, want %s", tc.msgType, bucket, tc.bucket)
		}
	}
}

func TestDocBucketForClassification(t *testing.T) {
	cases := []struct {
		msgType  string
		governed bool
	}{
		{TypeContentUpdate, true},
		{TypeCursorUpdate, true},
		{TypeSave, false},
		{TypePing, false},
		// Room-only types are dropped by the document endpoint; they must
		// not burn budget on their way to the drop.
		{TypeChat, false},
		{TypeOffer, false},
		{TypeICECandidate, false},
	}
	for _, tc := range cases {
		bucket, governed := DocBucketFor(tc.msgType)
		if governed != tc.governed {
			t.Fatalf("%s: governed = %v, want %v", tc.msgType, governed, tc.governed)
		}
		if governed && bucket != BucketDefault {
			t.Fatalf("%s: bucket = %s, want %s", tc.msgType, bucket, BucketDefault)
		}
	}
}
