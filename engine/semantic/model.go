package semantic

import (
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// Payload keys. The *_key and *_norm fields hold normalized values so
// keyword filters compare like with like.
const (
	keyID          = "id"
	keyName        = "name"
	keySKU         = "sku"
	keyPrice       = "price"
	keyCategory    = "category"
	keyCategoryKey = "category_key"
	keyBrand       = "brand"
	keySize        = "speaker_size"
	keySizeNorm    = "speaker_size_norm"
	keyCode        = "metra_code"
	keyCodeNorm    = "metra_code_norm"
	keySeq         = "seq"
)

// pointID maps a product identity onto the UUID Qdrant requires.
func pointID(p domain.Product) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("qdrant|"+domain.ProductID(p))).String()
}

func productPayload(p domain.Product, seq int) map[string]*pb.Value {
	return map[string]*pb.Value{
		keyID:          strValue(p.ID),
		keyName:        strValue(p.Name),
		keySKU:         strValue(p.SKU),
		keyPrice:       strValue(p.Price.String()),
		keyCategory:    strValue(p.Category),
		keyCategoryKey: strValue(categoryKey(p.Category)),
		keyBrand:       strValue(p.Brand),
		keySize:        strValue(p.SpeakerSize),
		keySizeNorm:    strValue(normalize.Size(p.SpeakerSize)),
		keyCode:        strValue(p.MetraCode),
		keyCodeNorm:    strValue(normalize.Code(p.MetraCode)),
		keySeq:         {Kind: &pb.Value_IntegerValue{IntegerValue: int64(seq)}},
	}
}

func productFromPayload(payload map[string]*pb.Value) (domain.Product, int) {
	get := func(k string) string { return payload[k].GetStringValue() }
	p := domain.Product{
		ID:          get(keyID),
		Name:        get(keyName),
		SKU:         get(keySKU),
		Price:       domain.PriceOf(get(keyPrice)),
		Category:    get(keyCategory),
		Brand:       get(keyBrand),
		SpeakerSize: get(keySize),
		MetraCode:   get(keyCode),
	}
	seq := payload[keySeq]
	switch k := seq.GetKind().(type) {
	case *pb.Value_IntegerValue:
		return p, int(k.IntegerValue)
	case *pb.Value_DoubleValue:
		return p, int(k.DoubleValue)
	case *pb.Value_StringValue:
		n, _ := strconv.Atoi(k.StringValue)
		return p, n
	}
	return p, 0
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func categoryKey(c string) string { return normalize.Name(c) }
