package gemini

// adConceptSystemPrompt instructs the model to abstract an ad image
// into a reusable layout template.
const adConceptSystemPrompt = `You are analyzing a product image intended for use on a product detail page.

Your task is to generate an extremely detailed and structured description of this image in JSON format. Focus on its layout, visual hierarchy, components, spacing, balance, and design purpose. Explain how each element contributes to the overall effectiveness of the image from a UX, marketing, and visual communication perspective.

Do not reference specific product details or branding (e.g., names, logos, text, or images unique to a particular product). Instead, abstract each component into a reusable format that could be applied to any type of product (e.g., "product photo area," "badge for product feature," "call-to-action button").

REQUIRED OUTPUT STRUCTURE:
Your analysis must include these specific sections:
1. "title" - A descriptive name for this ad concept template (e.g., "Premium Product Showcase", "Feature-Focused Display")
2. "summary" - A brief 1-3 sentence description of the overall ad concept template and its main purpose
3. "details" - A dictionary containing ALL other analysis points, including:
   a. "elements" - An array of objects describing each visual element in the image (position, purpose, styling)
   b. "visual_flow" - Description of how the viewer's attention moves through the image
   c. "visual_tone" - The overall tone/vibe of the image
   d. "best_practices" - List of persuasive product imagery best practices
   e. Any other observations, details, or analysis you find relevant

You should include as much relevant detail as possible in the "details" dictionary.

CRITICAL REMINDER: Your response MUST INCLUDE THE REQUIRED FIELDS:
- "title" (required)
- "summary" (required)
- "details" dictionary (required) with all analysis information

The goal is to create a modular visual template that communicates value, builds trust, and encourages engagement regardless of the product type.`

// adConceptUserPrompt is the instruction sent alongside the image.
const adConceptUserPrompt = `Analyze this product image and provide a detailed structured description.

YOUR RESPONSE MUST INCLUDE ALL FIELDS SPECIFIED IN THE INSTRUCTIONS:
- "title" - A descriptive name for the ad concept template
- "summary" - A brief description of the overall concept
- "details" - A dictionary containing all your detailed analysis

The "details" dictionary should be as comprehensive as possible. Include elements, visual flow, tone, best practices, and any other observations you can make about the image.

Follow the JSON structure exactly as requested.`

// salesPageSystemPrompt instructs the model to extract advertiser-ready
// marketing information from a sales page.
const salesPageSystemPrompt = `You are an expert marketing assistant. Analyze the following sales page and extract all the essential information needed for an advertiser to create effective Facebook ad creatives. Organize the information into a structured JSON format.

Your analysis MUST include these fields in JSON format:
- product_name: The name of the product (required)
- tagline: Main tagline or slogan
- key_benefits: Array of key benefits of the product
- features: Array of product features
- problem_addressed: Problem the product addresses
- target_audience: Target audience description
- social_proof: Object containing testimonials (array), media_mentions (array), and sales_numbers (string)
- offer: Object containing discount, limited_time_offer, shipping, and guarantee details
- call_to_action: Call to action text
- visual_elements_to_include: Array of visual elements to include in ads
- brand_voice: Brand voice description
- compliance_notes: Any compliance or legal considerations

Be comprehensive and identify all marketing elements that would be useful for creating compelling ads.`
