package renderer

// popupSuppressionJS hides consent banners, modals and their backdrops before
// capture. It combines a curated selector list with a stacking-order
// heuristic: any fixed or absolutely positioned element with a very high
// z-index, or classed as an overlay/backdrop, is hidden. This is best-effort
// pattern matching; it can hide legitimate content or miss novel popup
// implementations, and that imprecision is accepted.
const popupSuppressionJS = `(() => {
	const selectors = [
		'#onetrust-consent-sdk',
		'#onetrust-banner-sdk',
		'#CybotCookiebotDialog',
		'#cookiescript_injected',
		'#usercentrics-root',
		'#didomi-host',
		'#sp_message_container',
		'#truste-consent-track',
		'.cc-window',
		'.cc-banner',
		'.cookie-consent',
		'.cookie-banner',
		'.cookie-notice',
		'.consent-banner',
		'.gdpr-banner',
		'.modal.show',
		'.modal-backdrop',
		'[class*="cookieconsent"]',
		'[id*="cookie-law"]',
		'[aria-label="cookieconsent"]',
		'[role="dialog"][aria-modal="true"]',
	];
	const hide = (el) => {
		el.style.setProperty('display', 'none', 'important');
		el.style.setProperty('visibility', 'hidden', 'important');
	};
	for (const sel of selectors) {
		try {
			document.querySelectorAll(sel).forEach(hide);
		} catch (_) {}
	}
	const Z_THRESHOLD = 999;
	for (const el of document.querySelectorAll('body *')) {
		const style = window.getComputedStyle(el);
		if (style.position !== 'fixed' && style.position !== 'absolute') {
			continue;
		}
		const z = parseInt(style.zIndex, 10);
		const cls = (el.className && el.className.toString) ? el.className.toString().toLowerCase() : '';
		const id = (el.id || '').toLowerCase();
		const overlayish = cls.includes('overlay') || cls.includes('backdrop') ||
			id.includes('overlay') || id.includes('backdrop');
		if ((!isNaN(z) && z >= Z_THRESHOLD) || overlayish) {
			hide(el);
		}
	}
	document.documentElement.style.setProperty('overflow', 'visible', 'important');
	document.body.style.setProperty('overflow', 'visible', 'important');
	return true;
})()`
