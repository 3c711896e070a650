package domain

// Side - сторона заявки
type Side string

// Trade sides
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order types (ORD_DVSN)
const (
	OrderTypeLimit  = "00"
	OrderTypeMarket = "01"
)

// Defaults
const (
	DefaultSymbol             = "005930"
	DefaultAccountProductCode = "01"
	DefaultOrderQuantity      = 1
)

// KIS hosts
const (
	KISRealBaseURL  = "https://openapi.koreainvestment.com:9443"
	KISPaperBaseURL = "https://openapivts.koreainvestment.com:29443"
)

// KIS endpoints
const (
	KISTokenPath = "/oauth2/tokenP"
	KISPricePath = "/uapi/domestic-stock/v1/quotations/inquire-price"
	KISOrderPath = "/uapi/domestic-stock/v1/trading/order-cash"
)

// KIS transaction ids
const (
	TrIDInquirePrice = "FHKST01010100"
	TrIDRealBuy      = "TTTC0802U"
	TrIDRealSell     = "TTTC0801U"
	TrIDPaperBuy     = "VTTC0802U"
	TrIDPaperSell    = "VTTC0801U"
)

// KIS misc
const (
	KISGrantType      = "client_credentials"
	KISCustTypeRetail = "P"
	KISMarketStock    = "J"
	KISSuccessCode    = "0"
)
