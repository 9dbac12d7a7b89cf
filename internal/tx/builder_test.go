package tx

import (
	"context"
	"math/big"
	"testing"
)

func TestParseGasPrice(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    *big.Int
		wantErr bool
	}{
		{name: "empty means no override", input: "", want: nil},
		{name: "whitespace only", input: "   ", want: nil},
		{name: "decimal wei", input: "20000000000", want: big.NewInt(20_000_000_000)},
		{name: "gwei suffix", input: "20gwei", want: big.NewInt(20_000_000_000)},
		{name: "gwei with space", input: "5 gwei", want: big.NewInt(5_000_000_000)},
		{name: "uppercase suffix", input: "3GWEI", want: big.NewInt(3_000_000_000)},
		{name: "negative", input: "-1", wantErr: true},
		{name: "not a number", input: "fast", wantErr: true},
		{name: "fractional gwei unsupported", input: "1.5gwei", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseGasPrice(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("期望解析 %q 失败", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("解析 %q 失败: %v", tc.input, err)
			}
			if tc.want == nil {
				if got != nil {
					t.Fatalf("期望 nil, 实际 %s", got)
				}
				return
			}
			if got.Cmp(tc.want) != 0 {
				t.Fatalf("期望 %s, 实际 %s", tc.want, got)
			}
		})
	}
}

func TestPayloadBuilderValidates(t *testing.T) {
	ctx := context.Background()

	if _, err := PayloadBuilder("", "", "", 0)(ctx); err == nil {
		t.Fatal("缺少地址和数据时应报错")
	}
	if _, err := PayloadBuilder("0xZZ", "", "", 0)(ctx); err == nil {
		t.Fatal("非法地址应报错")
	}
	if _, err := PayloadBuilder("0x1111111111111111111111111111111111111111", "abc", "", 0)(ctx); err == nil {
		t.Fatal("非法金额应报错")
	}
	if _, err := PayloadBuilder("0x1111111111111111111111111111111111111111", "", "0xzz", 0)(ctx); err == nil {
		t.Fatal("非法调用数据应报错")
	}
}

func TestPayloadBuilderBuildsRequest(t *testing.T) {
	req, err := PayloadBuilder("0x1111111111111111111111111111111111111111", "1000", "a9059cbb", 60000)(context.Background())
	if err != nil {
		t.Fatalf("构建失败: %v", err)
	}
	if req.To == nil || req.To.Hex() != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("目标地址异常: %v", req.To)
	}
	if req.Value.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("金额异常: %s", req.Value)
	}
	if len(req.Data) != 4 {
		t.Fatalf("无前缀十六进制应被接受, 实际长度 %d", len(req.Data))
	}
	if req.GasLimit != 60000 {
		t.Fatalf("gas 上限异常: %d", req.GasLimit)
	}
}

func TestPayloadBuilderAllowsContractCreation(t *testing.T) {
	req, err := PayloadBuilder("", "", "0x6001600101", 0)(context.Background())
	if err != nil {
		t.Fatalf("构建失败: %v", err)
	}
	if req.To != nil {
		t.Fatal("合约部署交易不应有目标地址")
	}
	if len(req.Data) == 0 {
		t.Fatal("部署字节码不应为空")
	}
}
