package template

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Flexツリーは上から順に組み立てるだけで、子から親への参照は持たない

func header(title, subtitle, color string) *messaging_api.FlexBox {
	contents := []messaging_api.FlexComponentInterface{
		&messaging_api.FlexText{
			Text:   title,
			Size:   "sm",
			Color:  colorMuted,
			Weight: messaging_api.FlexTextWEIGHT_BOLD,
		},
	}
	if subtitle != "" {
		contents = append(contents, &messaging_api.FlexText{
			Text:   subtitle,
			Size:   "xl",
			Color:  color,
			Weight: messaging_api.FlexTextWEIGHT_BOLD,
			Margin: "sm",
		})
	}
	return &messaging_api.FlexBox{
		Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
		Contents: contents,
	}
}

func body(rows ...messaging_api.FlexComponentInterface) *messaging_api.FlexBox {
	return &messaging_api.FlexBox{
		Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
		Spacing:  "sm",
		Contents: rows,
	}
}

func footer(text string) *messaging_api.FlexBox {
	return &messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
		Contents: []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{
				Text:  text,
				Size:  "xxs",
				Color: colorMuted,
				Align: messaging_api.FlexTextALIGN_END,
			},
		},
	}
}

// row はラベルと値の2列の行
func row(label, value, valueColor string) *messaging_api.FlexBox {
	if valueColor == "" {
		valueColor = "#111111"
	}
	return &messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_HORIZONTAL,
		Contents: []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{
				Text:  label,
				Size:  "sm",
				Color: colorLabel,
				Flex:  2,
			},
			&messaging_api.FlexText{
				Text:   value,
				Size:   "sm",
				Color:  valueColor,
				Weight: messaging_api.FlexTextWEIGHT_BOLD,
				Align:  messaging_api.FlexTextALIGN_END,
				Flex:   3,
				Wrap:   true,
			},
		},
	}
}

// tickerRow はシンボル・価格・変動率の3列の行
func tickerRow(symbol, price, change string, dir Direction) *messaging_api.FlexBox {
	return &messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_HORIZONTAL,
		Contents: []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{
				Text:   symbol,
				Size:   "sm",
				Weight: messaging_api.FlexTextWEIGHT_BOLD,
				Flex:   3,
			},
			&messaging_api.FlexText{
				Text:  price,
				Size:  "sm",
				Align: messaging_api.FlexTextALIGN_END,
				Flex:  4,
			},
			&messaging_api.FlexText{
				Text:  dir.Marker() + " " + change,
				Size:  "sm",
				Color: dir.Color(),
				Align: messaging_api.FlexTextALIGN_END,
				Flex:  3,
			},
		},
	}
}

func separator() *messaging_api.FlexSeparator {
	return &messaging_api.FlexSeparator{Margin: "md"}
}

func bubble(h, b, f *messaging_api.FlexBox) *messaging_api.FlexBubble {
	return &messaging_api.FlexBubble{
		Header: h,
		Body:   b,
		Footer: f,
	}
}
