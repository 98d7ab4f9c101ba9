package signal

import "fmt"

const systemPrompt = "You are an expert in financial data extraction."

// BuildPrompt 生成结构化抽取提示词。
func BuildPrompt(text, todayDate, expiryDate string) string {
	return fmt.Sprintf(`Extract structured trading information from the given text.

**Input Text:** %q

**Expected Output JSON:**
{
    "symbol": "<Extracted Symbol>",
    "date": "%s",
    "expiry": "%s",
    "Buy1": <Lowest Buy Price>,
    "Buy2": <Second Lowest Buy Price>,
    "SL1": <Highest SL>,
    "SL2": <Next Highest SL>,
    "Target1": <First Closest Target>,
    "Target2": <Second Closest Target>
}

Ensure the values are correctly extracted and formatted from the input text.`, text, todayDate, expiryDate)
}
