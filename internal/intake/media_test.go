package intake

import (
	"testing"

	"github.com/civicline/civicline/pkg/civic"
)

func TestAppendMedia(t *testing.T) {
	p := PolicyFor(civic.ChannelWhatsApp) // cap 3
	s := &Session{}

	for i := 1; i <= 2; i++ {
		res := AppendMedia(p, s, civic.MediaItem{Filename: "a.jpg"})
		if !res.Accepted || res.Count != i || res.ShouldFinalize {
			t.Fatalf("append %d: %+v", i, res)
		}
	}

	res := AppendMedia(p, s, civic.MediaItem{Filename: "c.jpg"})
	if !res.Accepted || !res.ShouldFinalize || res.Count != 3 {
		t.Fatalf("cap-filling append: %+v", res)
	}

	res = AppendMedia(p, s, civic.MediaItem{Filename: "d.jpg"})
	if res.Accepted || res.Count != 3 {
		t.Fatalf("over-cap append: %+v", res)
	}
	if len(s.Media) != 3 {
		t.Errorf("session media = %d", len(s.Media))
	}
}

func TestAppendMediaOrdinals(t *testing.T) {
	p := PolicyFor(civic.ChannelTelegram)
	s := &Session{}

	AppendMedia(p, s, civic.MediaItem{Filename: "a.jpg"})
	AppendMedia(p, s, civic.MediaItem{Filename: "b.jpg"})

	if s.Media[0].Seq != 1 || s.Media[1].Seq != 2 {
		t.Errorf("ordinals = %d, %d", s.Media[0].Seq, s.Media[1].Seq)
	}
}

func TestPolicyFor(t *testing.T) {
	tg := PolicyFor(civic.ChannelTelegram)
	if tg.MediaCap != 5 || tg.AllowEmptyDone || tg.MaxVideoBytes != 20*1024*1024 {
		t.Errorf("telegram policy = %+v", tg)
	}

	wa := PolicyFor(civic.ChannelWhatsApp)
	if wa.MediaCap != 3 || !wa.AllowEmptyDone {
		t.Errorf("whatsapp policy = %+v", wa)
	}

	// Unknown channels fall back to the permissive policy.
	unknown := PolicyFor(civic.Channel("sms"))
	if unknown.MediaCap != wa.MediaCap || unknown.AllowEmptyDone != wa.AllowEmptyDone {
		t.Errorf("unknown channel policy = %+v", unknown)
	}
}
