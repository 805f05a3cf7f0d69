package context

import "github.com/strideai/coach/plugin/ai/personalization"

// styleTemplates are the coaching-style instruction blocks appended to every
// assembled context. Selection follows the personalization profile's
// effective coaching style.
var styleTemplates = map[personalization.CoachingStyle]string{
	personalization.CoachingDrillSergeant: "Coaching style: be direct and demanding. Short sentences, concrete targets, no hedging. Push for commitment on every recommendation.",
	personalization.CoachingSupportive:    "Coaching style: be warm and encouraging. Acknowledge effort before correcting. Frame setbacks as normal and keep recommendations gentle but clear.",
	personalization.CoachingScientific:    "Coaching style: be evidence-led. Explain the reasoning behind each recommendation, cite the retrieved knowledge where it applies, and quantify where possible.",
	personalization.CoachingBalanced:      "Coaching style: be clear and supportive in equal measure. Give the direct recommendation first, then a brief rationale.",
}

// styleInstruction returns the instruction block for a profile, falling back
// to the default style for low-confidence or unknown profiles.
func styleInstruction(p *personalization.Profile) string {
	style := personalization.DefaultCoachingStyle
	if p != nil {
		style = p.EffectiveCoachingStyle()
	}
	if tpl, ok := styleTemplates[style]; ok {
		return tpl
	}
	return styleTemplates[personalization.DefaultCoachingStyle]
}
