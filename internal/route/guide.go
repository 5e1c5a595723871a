package route

import "strings"

// Maneuver codes used by the provider's guide.type field.
const (
	guideStraight     = 1
	guideLeft         = 2
	guideRight        = 3
	guideUTurn        = 4
	guideOverpassOut  = 17
	guideTollStraight = 101
	guideTollLeft     = 102
	guideTollRight    = 103
	guideTollUTurn    = 104
)

var guideTemplates = map[int]string{
	1:   "직진하세요",
	2:   "좌회전하세요",
	3:   "우회전하세요",
	4:   "유턴하세요",
	5:   "왼쪽 방향으로 진행하세요",
	6:   "오른쪽 방향으로 진행하세요",
	7:   "고속도로 진입",
	8:   "고속도로 진출",
	9:   "페리 승선",
	10:  "페리 하선",
	11:  "회전교차로 진입",
	12:  "회전교차로 진출",
	14:  "지하차도 진입",
	15:  "지하차도 진출",
	16:  "고가차도 진입",
	17:  "고가차도 진출",
	18:  "분기점",
	19:  "합류점",
	20:  "톨게이트",
	21:  "휴게소",
	101: "톨게이트 직진",
	102: "톨게이트 좌회전",
	103: "톨게이트 우회전",
	104: "톨게이트 유턴",
	105: "요금소",
	106: "하이패스 전용",
	107: "일반 요금소",
	108: "하이패스/일반",
	200: "출발지점",
	201: "목적지 도착",
}

const defaultGuideTemplate = "계속 진행하세요"

// Codes whose template gets the " <street>으로" suffix.
var streetSuffixCodes = map[int]bool{
	1: true, 2: true, 3: true, 5: true, 6: true,
	7: true, 8: true, 12: true, 18: true, 19: true,
}

// GuideInstruction renders the fallback instruction for a maneuver code.
func GuideInstruction(code int, street string) string {
	text, known := guideTemplates[code]
	if !known {
		text = defaultGuideTemplate
	}
	street = strings.TrimSpace(street)
	if street != "" && (!known || streetSuffixCodes[code]) {
		text += " " + street + "으로"
	}
	return text
}

// GuideDirection maps a maneuver code to the simplified direction.
func GuideDirection(code int) Direction {
	switch code {
	case guideStraight, guideTollStraight:
		return DirectionStraight
	case guideLeft, guideTollLeft:
		return DirectionLeft
	case guideRight, guideTollRight:
		return DirectionRight
	case guideUTurn, guideOverpassOut, guideTollUTurn:
		return DirectionUTurn
	default:
		return DirectionStraight
	}
}

// boardingInstruction builds "<dep>에서 <vehicle>번 버스 탑승 → <arr> 하차" for
// transit guides. It returns "" when the guide lacks a vehicle or stops.
func boardingInstruction(transportType string, g *Guide) string {
	if g.Vehicle == nil || strings.TrimSpace(g.Vehicle.Name) == "" {
		return ""
	}
	dep := strings.TrimSpace(g.DepartureStopName)
	arr := strings.TrimSpace(g.ArrivalStopName)
	if dep == "" || arr == "" {
		return ""
	}
	if strings.EqualFold(transportType, "SUBWAY") || (transportType == "" && g.Type == 4) {
		return dep + "에서 " + g.Vehicle.Name + " 지하철 탑승 → " + arr + " 하차"
	}
	return dep + "에서 " + g.Vehicle.Name + "번 버스 탑승 → " + arr + " 하차"
}
