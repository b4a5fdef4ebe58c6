package enrich

// DescriptionPrompt asks the vision model for an accessibility description
// that can stand in for the image inside retrieval chunks.
const DescriptionPrompt = `Describe this image for a reader who cannot see it. The description will replace the image in a searchable document.

If the image is a chart or a table:
- Name the chart type and each axis: its label, units, scale and range.
- Read the legend and list every series with its key points.
- Report the visible values, approximating where needed: peaks, lows, totals and comparisons.
- Summarize trends, correlations, outliers and any labels or annotations.

Otherwise describe the layout, the objects, any text, the colors, where things sit and how they relate.

Always transcribe legible text such as titles and labels, in quotes.

Write 8 to 15 short factual sentences. Do not give opinions. Do not include markdown images or code fences.`
