package message

import "fmt"

// NexusTrade LINEボットのメッセージ定数
// 利用シーン順に整理

// ========================================
// 1. 友だち追加・グループ参加
// ========================================

// DefaultDisplayName は表示名を取得できなかったときの呼び名
const DefaultDisplayName = "トレーダー"

// Welcome は友だち追加時の挨拶メッセージを生成する
func Welcome(displayName string) string {
	return fmt.Sprintf("%sさん、NexusTradeを友だち追加してくれてありがとうございます！📈\n\n"+
		"ダッシュボードで設定した価格アラートやウォッチリストの通知をここにお届けします。\n\n"+
		"「ヘルプ」と送ると使い方を確認できます。", displayName)
}

// JoinGroupGreeting はグループに招待された時の挨拶メッセージ
const JoinGroupGreeting = "NexusTradeをグループに招待してくれてありがとうございます！📊\n\n" +
	"「BTC」のように通貨シンボルを送ると最新価格をお知らせします。\n" +
	"「ヘルプ」でコマンド一覧を表示します。"

// MemberJoinedGreeting はグループに新しいメンバーが参加した時のメッセージ
const MemberJoinedGreeting = "ようこそ！👋 「ヘルプ」と送るとNexusTradeの使い方を確認できます。"

// ========================================
// 2. コマンド応答
// ========================================

// Help はコマンド一覧
const Help = "📖 NexusTrade の使い方\n\n" +
	"• BTC / ETHUSDT … 通貨シンボルを送ると最新価格\n" +
	"• 価格 BTC … 指定した通貨の24時間ティッカー\n" +
	"• アラート … 価格アラートについて\n" +
	"• ステータス … 通知サービスの状態\n" +
	"• ヘルプ … このメッセージ"

// AlertInfo は価格アラートの説明
const AlertInfo = "🔔 価格アラートについて\n\n" +
	"ダッシュボードのウォッチリストから、通貨ごとに目標価格を設定できます。\n" +
	"価格が目標を上回った／下回ったときに、このトークへ通知が届きます。\n\n" +
	"通知を止めたい場合はダッシュボードでアラートを削除してください。"

// UnknownCommand は解釈できないメッセージへの応答
const UnknownCommand = "ごめんなさい、メッセージを理解できませんでした🙏\n「ヘルプ」と送るとコマンド一覧を表示します。"

// PriceUnavailable は価格取得に失敗したときの応答を生成する
func PriceUnavailable(symbol string) string {
	return fmt.Sprintf("%s の価格を取得できませんでした。シンボルを確認して、しばらくしてからもう一度お試しください。", symbol)
}

// ServiceStatus はステータスコマンドへの応答を生成する
func ServiceStatus(configured bool, followers int, templates int) string {
	state := "稼働中 ✅"
	if !configured {
		state = "未設定 ⚠️"
	}
	return fmt.Sprintf("🛰 通知サービスの状態\n\n状態: %s\n登録ユーザー: %d人\nテンプレート: %d種類", state, followers, templates)
}

// ========================================
// 3. ポストバック
// ========================================

// PostbackUnknown は不明なポストバックへの応答
const PostbackUnknown = "この操作には対応していません。"

// ========================================
// 4. テンプレート用ラベル
// ========================================

const (
	// Placeholder は未計算の値の代わりに表示する文字列
	Placeholder = "計算中…"

	PriceAlertTitle    = "🚨 価格アラート"
	PriceQuoteTitle    = "💹 価格情報"
	MarketSummaryTitle = "📊 マーケットサマリー"

	LabelCurrentPrice = "現在価格"
	LabelTargetPrice  = "目標価格"
	LabelCondition    = "条件"
	LabelChange24h    = "24h変動率"
	LabelHigh24h      = "24h高値"
	LabelLow24h       = "24h安値"
	LabelVolume24h    = "24h出来高"

	ConditionAbove   = "目標価格を上回りました"
	ConditionBelow   = "目標価格を下回りました"
	ConditionReached = "目標価格に到達しました"

	NoMarketData = "データ取得中"

	DefaultNoticeTitle = "お知らせ"
)

// PriceAlertAltText はFlexメッセージを表示できない端末向けの代替テキストを生成する
func PriceAlertAltText(symbol, price, change string) string {
	return fmt.Sprintf("【価格アラート】%s が %s に到達しました (%s)", symbol, price, change)
}

// PriceQuoteAltText は価格情報の代替テキストを生成する
func PriceQuoteAltText(symbol, price, change string) string {
	return fmt.Sprintf("%s: %s (%s)", symbol, price, change)
}
