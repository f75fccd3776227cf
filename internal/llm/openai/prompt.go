package openai

// ExtractionPrompt asks the model for the three patient fields in a fixed
// JSON shape. Absent values must come back as "Not Found".
const ExtractionPrompt = `Please extract the following patient information from this medical document:

1. Patient's First Name
2. Patient's Last Name
3. Patient's Date of Birth (DOB)

Please respond in the following JSON format:
{
    "patient_first_name": "extracted first name",
    "patient_last_name": "extracted last name",
    "patient_dob": "extracted date of birth",
    "confidence": "high/medium/low",
    "notes": "any additional observations"
}

If any information cannot be found, use "Not Found" as the value.
Dates of birth should be formatted as YYYY-MM-DD when possible.
Be very careful to extract only the requested information and maintain accuracy.`
